package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/metrics"
)

// exemptPaths are never rate limited so probes and scrapers keep working.
var exemptPaths = map[string]bool{
	"/health":  true,
	"/ping":    true,
	"/metrics": true,
}

// RateLimit rejects clients that exceed the limiter's window with 429.
// When enabled is false the middleware is a pass-through. Counter failures
// let the request through.
func RateLimit(limiter *cache.FixedWindowLimiter, enabled bool, m *metrics.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("rate-limit")
	return func(next http.Handler) http.Handler {
		if !enabled || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIP(r)
			decision, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.Warn("Rate limit check failed, allowing request",
					zap.String("client_ip", clientIP),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := decision.Limit - decision.Count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !decision.Allowed {
				m.RecordRateLimitRejection()
				logger.Info("Rate limit exceeded",
					zap.String("client_ip", clientIP),
					zap.Int64("count", decision.Count))

				retryAfter := int64(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "Too many requests, please try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
