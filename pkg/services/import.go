package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/metrics"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/places"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
	"github.com/trustdiner/trustdiner-api/pkg/retry"
)

// Import outcomes reported to metrics.
const (
	importOutcomeImported = "imported"
	importOutcomeExisting = "existing"
	importOutcomeRejected = "rejected"
	importOutcomeFailed   = "failed"
)

var photoRetry = &retry.Config{
	MaxRetries:   2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.1,
}

// ImportService turns a provider place into a local venue.
type ImportService interface {
	// Import ensures exactly one venue exists for placeID and returns it.
	// Imported is false when the venue was already stored.
	Import(ctx context.Context, placeID string) (*models.ImportResult, error)
}

type importService struct {
	scopes    ScopeProvider
	venueRepo repositories.VenueRepository
	provider  places.Provider
	photos    PhotoStore
	cache     cache.Cache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewImportService creates an import service. m may be nil.
func NewImportService(
	scopes ScopeProvider,
	venueRepo repositories.VenueRepository,
	provider places.Provider,
	photos PhotoStore,
	c cache.Cache,
	m *metrics.Metrics,
	logger *zap.Logger,
) ImportService {
	return &importService{
		scopes:    scopes,
		venueRepo: venueRepo,
		provider:  provider,
		photos:    photos,
		cache:     c,
		metrics:   m,
		logger:    logger.Named("import"),
		now:       time.Now,
	}
}

var _ ImportService = (*importService)(nil)

func (s *importService) Import(ctx context.Context, placeID string) (*models.ImportResult, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, fmt.Errorf("%w: place_id is required", apperrors.ErrInvalidInput)
	}
	if !places.ValidPlaceID(placeID) {
		return nil, fmt.Errorf("%w: place_id contains unsupported characters", apperrors.ErrInvalidInput)
	}

	var existing *models.Venue
	err := withConnection(ctx, s.scopes, func(ctx context.Context) error {
		var err error
		existing, err = s.venueRepo.GetByPlaceID(ctx, placeID)
		return err
	})
	if err == nil {
		s.metrics.RecordImport(importOutcomeExisting)
		return &models.ImportResult{PlaceID: placeID, Imported: false, Venue: existing}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing venue: %w", err)
	}

	if !s.provider.Available() {
		return nil, apperrors.ErrProviderUnavailable
	}

	details, err := s.provider.GetDetails(ctx, placeID)
	if err != nil {
		s.metrics.RecordImport(importOutcomeFailed)
		return nil, fmt.Errorf("failed to fetch place details: %w", err)
	}
	if strings.TrimSpace(details.Name) == "" {
		s.metrics.RecordImport(importOutcomeRejected)
		return nil, fmt.Errorf("%w: place has no name", apperrors.ErrInvalidInput)
	}
	if err := ValidateDiningVenue(details); err != nil {
		s.metrics.RecordImport(importOutcomeRejected)
		s.logger.Info("Rejected non-dining import",
			zap.String("place_id", placeID),
			zap.String("name", details.Name),
			zap.Error(err))
		return nil, err
	}

	venue := s.venueFromPlace(ctx, placeID, details)

	var photoPath string
	if len(details.Photos) > 0 {
		BestEffort(ctx, s.logger, "download_photo", func(ctx context.Context) error {
			path, err := s.storePhoto(ctx, details.Photos[0].Name)
			photoPath = path
			return err
		})
	}
	if photoPath != "" {
		venue.ImageRef = &photoPath
	}

	var inserted bool
	err = withConnection(ctx, s.scopes, func(ctx context.Context) error {
		var err error
		inserted, err = s.venueRepo.InsertImported(ctx, venue)
		return err
	})
	if err != nil {
		s.metrics.RecordImport(importOutcomeFailed)
		s.discardPhoto(ctx, photoPath)
		return nil, fmt.Errorf("failed to insert venue: %w", err)
	}
	if !inserted {
		// A concurrent import stored this place first.
		s.discardPhoto(ctx, photoPath)
		s.metrics.RecordImport(importOutcomeExisting)
		return &models.ImportResult{PlaceID: placeID, Imported: false, Venue: venue}, nil
	}

	s.invalidate(ctx, venue)
	s.metrics.RecordImport(importOutcomeImported)
	s.logger.Info("Imported venue",
		zap.String("place_id", placeID),
		zap.String("venue_uuid", venue.UUID.String()),
		zap.Bool("has_photo", photoPath != ""))

	return &models.ImportResult{PlaceID: placeID, Imported: true, Venue: venue}, nil
}

func (s *importService) venueFromPlace(ctx context.Context, placeID string, p *places.Place) *models.Venue {
	status := p.BusinessStatus
	if !models.IsValidBusinessStatus(status) {
		status = models.BusinessStatusOperational
	}

	prov := models.GooglePlacesProvenance{
		PlaceID:      placeID,
		ImportedAt:   s.now().UTC(),
		Rating:       p.Rating,
		Types:        p.Types,
		OpeningHours: p.OpeningHours,
	}
	if p.UserRatingsTotal != nil {
		prov.UserRatingsTotal = *p.UserRatingsTotal
	}
	if id, ok := auth.GetAccountIDFromContext(ctx); ok {
		prov.ImportedBy = &id
	}

	v := &models.Venue{
		Name:           strings.TrimSpace(p.Name),
		Address:        optionalString(p.Address),
		Phone:          optionalString(p.Phone),
		Website:        optionalString(p.Website),
		BusinessStatus: status,
		Cuisine:        optionalString(cuisineFromTypes(p.Types)),
		PriceLevel:     p.PriceLevel,
		Provenance:     models.GooglePlacesImport(prov),
	}
	if p.HasCoordinates() {
		v.Latitude, v.Longitude = p.Latitude, p.Longitude
	}
	category := p.PrimaryType
	if category == "" && len(p.Types) > 0 {
		category = p.Types[0]
	}
	v.PrimaryCategory = optionalString(category)
	return v
}

// storePhoto downloads a photo, retrying transient provider failures.
func (s *importService) storePhoto(ctx context.Context, photoName string) (string, error) {
	var data []byte
	err := retry.DoWhen(ctx, photoRetry, func() error {
		var err error
		data, err = s.provider.DownloadPhoto(ctx, photoName)
		return err
	}, places.IsTransient)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", photoName, err)
	}
	return s.photos.Save(ctx, data)
}

func (s *importService) discardPhoto(ctx context.Context, path string) {
	if path == "" {
		return
	}
	BestEffort(ctx, s.logger, "remove_orphan_photo", func(ctx context.Context) error {
		return s.photos.Remove(ctx, path)
	})
}

// invalidate drops cached listings and searches that could now be stale.
func (s *importService) invalidate(ctx context.Context, v *models.Venue) {
	keys := []string{
		cache.APIKey("/restaurants"),
		cache.APIKey("/restaurants/search"),
		cache.SearchKey(v.Name),
	}
	if v.Address != nil {
		keys = append(keys, cache.SearchKey(*v.Address))
	}
	BestEffort(ctx, s.logger, "invalidate_cache", func(ctx context.Context) error {
		return s.cache.Delete(ctx, keys...)
	})
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
