package cache

import "strings"

const (
	searchPrefix = "search:"
	apiPrefix    = "api:"
	ratePrefix   = "ratelimit:"
)

// NormalizeQuery lowercases, trims, and collapses internal whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// SearchKey returns the cache key for a search query.
func SearchKey(query string) string {
	return searchPrefix + NormalizeQuery(query)
}

// APIKey returns the cache key for a cached API listing path.
func APIKey(path string) string {
	return apiPrefix + path
}

// RateLimitKey returns the counter key for a client identifier.
func RateLimitKey(clientID string) string {
	return ratePrefix + clientID
}
