package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/audit"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/config"
	"github.com/trustdiner/trustdiner-api/pkg/metrics"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/places"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

// MinQueryLength is the shortest accepted query after trimming, in runes.
const MinQueryLength = 2

// SearchRequest is one hybrid search call.
type SearchRequest struct {
	Query string
	// ForceFallback skips the cache and always consults the provider.
	ForceFallback bool
	ClientIP      string
}

// SearchService runs the hybrid local plus provider search.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) (*models.SearchResponse, error)
}

type searchService struct {
	scopes    ScopeProvider
	venueRepo repositories.VenueRepository
	provider  places.Provider
	cache     cache.Cache
	auditor   *audit.SecurityAuditor
	metrics   *metrics.Metrics
	policy    config.SearchConfig
	logger    *zap.Logger
}

// NewSearchService creates a search service. auditor and m may be nil.
// Connections come from scopes and are held only around storage calls.
func NewSearchService(
	scopes ScopeProvider,
	venueRepo repositories.VenueRepository,
	provider places.Provider,
	c cache.Cache,
	auditor *audit.SecurityAuditor,
	m *metrics.Metrics,
	policy config.SearchConfig,
	logger *zap.Logger,
) SearchService {
	return &searchService{
		scopes:    scopes,
		venueRepo: venueRepo,
		provider:  provider,
		cache:     c,
		auditor:   auditor,
		metrics:   m,
		policy:    policy,
		logger:    logger.Named("search"),
	}
}

var _ SearchService = (*searchService)(nil)

func (s *searchService) Search(ctx context.Context, req SearchRequest) (*models.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, apperrors.ErrQueryTooShort
	}

	normalized := cache.NormalizeQuery(query)
	key := cache.SearchKey(normalized)

	if s.auditor != nil {
		s.auditor.ScreenSearchQuery(ctx, query, req.ClientIP)
	}

	if !req.ForceFallback {
		if cached, ok := s.lookupCache(ctx, key); ok {
			return cached, nil
		}
	}

	var matches []repositories.VenueMatch
	err := withConnection(ctx, s.scopes, func(ctx context.Context) error {
		var err error
		matches, err = s.venueRepo.Search(ctx, normalized, strings.Fields(normalized), s.policy.MaxResults)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("local search failed: %w", err)
	}

	resp := &models.SearchResponse{
		Results:         make([]models.SearchResult, 0, len(matches)),
		Source:          models.SourceDatabase,
		Query:           query,
		GoogleAvailable: s.provider.Available(),
	}
	for _, m := range matches {
		resp.Results = append(resp.Results, localResult(m))
	}

	if len(resp.Results) >= s.policy.MinLocalResults && !req.ForceFallback {
		return s.finish(ctx, key, resp, true), nil
	}

	if !resp.GoogleAvailable {
		s.logger.Debug("Provider unavailable, returning local results",
			zap.String("query", normalized),
			zap.Int("local_results", len(resp.Results)))
		return s.finish(ctx, key, resp, true), nil
	}

	external, err := s.provider.TextSearch(ctx, query)
	if err != nil {
		// Degrade to local results and leave the cache alone so the next
		// request retries the provider.
		resp.GoogleAvailable = false
		resp.GoogleError = providerErrorMessage(err)
		return s.finish(ctx, key, resp, false), nil
	}

	if err := s.mergeExternal(ctx, resp, external); err != nil {
		return nil, err
	}
	return s.finish(ctx, key, resp, true), nil
}

func (s *searchService) lookupCache(ctx context.Context, key string) (*models.SearchResponse, bool) {
	var cached models.SearchResponse
	ok, err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		s.logger.Warn("Search cache read failed", zap.String("key", key), zap.Error(err))
		s.metrics.RecordCacheLookup("search", "error")
		return nil, false
	}
	if !ok {
		s.metrics.RecordCacheLookup("search", "miss")
		return nil, false
	}

	s.metrics.RecordCacheLookup("search", "hit")
	s.metrics.RecordSearch("cache")
	cached.Cached = true
	return &cached, true
}

// mergeExternal appends provider results after the local ones: places
// already stored but not in the local hits first, then new places.
func (s *searchService) mergeExternal(ctx context.Context, resp *models.SearchResponse, external []places.Place) error {
	seen := make(map[string]bool, len(resp.Results))
	for _, r := range resp.Results {
		if r.PlaceID != "" {
			seen[r.PlaceID] = true
		}
	}

	candidates := make([]places.Place, 0, len(external))
	ids := make([]string, 0, len(external))
	for _, p := range external {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		candidates = append(candidates, p)
		ids = append(ids, p.ID)
	}

	stored := map[string]string{}
	if len(ids) > 0 {
		var existing map[string]uuid.UUID
		err := withConnection(ctx, s.scopes, func(ctx context.Context) error {
			var err error
			existing, err = s.venueRepo.ExistingPlaceIDs(ctx, ids)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to check stored places: %w", err)
		}
		for placeID, venueUUID := range existing {
			stored[placeID] = venueUUID.String()
		}
	}

	var known, fresh []models.SearchResult
	for i := range candidates {
		r := externalResult(&candidates[i])
		if venueUUID, ok := stored[r.PlaceID]; ok {
			r.InDatabase = true
			r.VenueUUID = venueUUID
			known = append(known, r)
			continue
		}
		r.Addable = true
		fresh = append(fresh, r)
	}

	resp.Breakdown = &models.SearchBreakdown{
		Database:       len(resp.Results),
		GoogleExisting: len(known),
		GoogleNew:      len(fresh),
	}
	resp.Results = append(resp.Results, known...)
	resp.Results = append(resp.Results, fresh...)
	resp.Source = models.SourceHybrid
	return nil
}

// finish stamps the count, optionally caches, and records metrics.
func (s *searchService) finish(ctx context.Context, key string, resp *models.SearchResponse, store bool) *models.SearchResponse {
	resp.Count = len(resp.Results)
	if store {
		BestEffort(ctx, s.logger, "cache_search_results", func(ctx context.Context) error {
			return cache.SetJSON(ctx, s.cache, key, resp, s.policy.CacheTTL)
		})
	}
	s.metrics.RecordSearch(resp.Source)
	return resp
}

func providerErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		return "Google Places is not configured"
	case places.IsTransient(err):
		return "Google Places is temporarily unavailable"
	default:
		return "Google Places search failed"
	}
}

func localResult(m repositories.VenueMatch) models.SearchResult {
	v := m.Venue
	r := models.SearchResult{
		VenueUUID:      v.UUID.String(),
		Name:           v.Name,
		Latitude:       v.Latitude,
		Longitude:      v.Longitude,
		PriceLevel:     v.PriceLevel,
		BusinessStatus: v.BusinessStatus,
		Source:         models.SourceDatabase,
		InDatabase:     true,
		Relevance:      m.Relevance,
	}
	r.PlaceID = r.VenueUUID
	if placeID, ok := v.PlaceID(); ok {
		r.PlaceID = placeID
	}
	if gp := v.Provenance.GooglePlaces; gp != nil {
		r.Rating = gp.Rating
		r.UserRatingsTotal = gp.UserRatingsTotal
	}
	if v.Address != nil {
		r.Address = *v.Address
	}
	if v.PrimaryCategory != nil {
		r.PrimaryCategory = *v.PrimaryCategory
	}
	if v.Cuisine != nil {
		r.Cuisine = *v.Cuisine
	}
	if v.ImageRef != nil {
		r.ImageRef = *v.ImageRef
	}
	return r
}

func externalResult(p *places.Place) models.SearchResult {
	r := models.SearchResult{
		PlaceID:         p.ID,
		Name:            p.Name,
		Address:         p.Address,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Rating:          p.Rating,
		PriceLevel:      p.PriceLevel,
		BusinessStatus:  p.BusinessStatus,
		PrimaryCategory: p.PrimaryType,
		Cuisine:         cuisineFromTypes(p.Types),
		Source:          models.SourceGoogle,
	}
	if p.UserRatingsTotal != nil {
		r.UserRatingsTotal = *p.UserRatingsTotal
	}
	if len(p.Photos) > 0 {
		r.ImageRef = p.Photos[0].Name
	}
	return r
}
