package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

// Listing page bounds for GET /restaurants.
const (
	DefaultVenuePageSize = 50
	MaxVenuePageSize     = 200
)

// VenueInput is the admin-editable part of a venue.
type VenueInput struct {
	Name            string   `json:"name"`
	Address         *string  `json:"address"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Phone           *string  `json:"phone"`
	Website         *string  `json:"website"`
	BusinessStatus  string   `json:"business_status"`
	PrimaryCategory *string  `json:"primary_category"`
	Cuisine         *string  `json:"cuisine"`
	PriceLevel      *int     `json:"price_level"`
	ImageRef        *string  `json:"image_ref"`
	ChainID         *int64   `json:"chain_id"`
}

// VenueService serves the venue catalogue and its admin edits.
type VenueService interface {
	// List returns operational venues with review aggregates. The default
	// first page is cached.
	List(ctx context.Context, limit, offset int) ([]*models.VenueDetail, error)
	Get(ctx context.Context, id uuid.UUID) (*models.VenueDetail, error)
	Create(ctx context.Context, input *VenueInput) (*models.Venue, error)
	Update(ctx context.Context, id uuid.UUID, input *VenueInput) (*models.Venue, error)
	// Delete refuses with ErrHasDependents while the venue has reviews.
	Delete(ctx context.Context, id uuid.UUID) error
}

type venueService struct {
	venueRepo repositories.VenueRepository
	chainRepo repositories.ChainRepository
	cache     cache.Cache
	listTTL   time.Duration
	logger    *zap.Logger
}

// NewVenueService creates a venue service.
func NewVenueService(
	venueRepo repositories.VenueRepository,
	chainRepo repositories.ChainRepository,
	c cache.Cache,
	listTTL time.Duration,
	logger *zap.Logger,
) VenueService {
	return &venueService{
		venueRepo: venueRepo,
		chainRepo: chainRepo,
		cache:     c,
		listTTL:   listTTL,
		logger:    logger.Named("venues"),
	}
}

var _ VenueService = (*venueService)(nil)

func (s *venueService) List(ctx context.Context, limit, offset int) ([]*models.VenueDetail, error) {
	if limit <= 0 {
		limit = DefaultVenuePageSize
	}
	if limit > MaxVenuePageSize {
		limit = MaxVenuePageSize
	}
	if offset < 0 {
		offset = 0
	}

	cacheable := limit == DefaultVenuePageSize && offset == 0
	key := cache.APIKey("/restaurants")
	if cacheable {
		var cached []*models.VenueDetail
		ok, err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			s.logger.Warn("Venue list cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	venues, err := s.venueRepo.ListDetails(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if venues == nil {
		venues = []*models.VenueDetail{}
	}
	if err := s.attachChains(ctx, venues); err != nil {
		return nil, err
	}

	if cacheable {
		BestEffort(ctx, s.logger, "cache_venue_list", func(ctx context.Context) error {
			return cache.SetJSON(ctx, s.cache, key, venues, s.listTTL)
		})
	}
	return venues, nil
}

func (s *venueService) Get(ctx context.Context, id uuid.UUID) (*models.VenueDetail, error) {
	detail, err := s.venueRepo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachChains(ctx, []*models.VenueDetail{detail}); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *venueService) Create(ctx context.Context, input *VenueInput) (*models.Venue, error) {
	if err := validateVenueInput(input); err != nil {
		return nil, err
	}

	v := &models.Venue{Provenance: models.ManualProvenance()}
	applyVenueInput(v, input)
	if err := s.venueRepo.Create(ctx, v); err != nil {
		return nil, err
	}

	s.invalidate(ctx, v)
	return v, nil
}

func (s *venueService) Update(ctx context.Context, id uuid.UUID, input *VenueInput) (*models.Venue, error) {
	if err := validateVenueInput(input); err != nil {
		return nil, err
	}

	v, err := s.venueRepo.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	previousName := v.Name
	applyVenueInput(v, input)
	if err := s.venueRepo.Update(ctx, v); err != nil {
		return nil, err
	}

	s.invalidate(ctx, v, previousName)
	return v, nil
}

func (s *venueService) Delete(ctx context.Context, id uuid.UUID) error {
	v, err := s.venueRepo.GetByUUID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.venueRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, v)
	return nil
}

// attachChains fills in the chain of each venue that belongs to one.
func (s *venueService) attachChains(ctx context.Context, venues []*models.VenueDetail) error {
	chains := map[int64]*models.Chain{}
	for _, d := range venues {
		if d.ChainID == nil {
			continue
		}
		c, ok := chains[*d.ChainID]
		if !ok {
			var err error
			c, err = s.chainRepo.GetByID(ctx, *d.ChainID)
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("failed to load chain %d: %w", *d.ChainID, err)
			}
			chains[*d.ChainID] = c
		}
		d.Chain = c
	}
	return nil
}

func (s *venueService) invalidate(ctx context.Context, v *models.Venue, extraNames ...string) {
	keys := []string{cache.APIKey("/restaurants"), cache.APIKey("/restaurants/search"), cache.SearchKey(v.Name)}
	if v.Address != nil {
		keys = append(keys, cache.SearchKey(*v.Address))
	}
	for _, n := range extraNames {
		keys = append(keys, cache.SearchKey(n))
	}
	BestEffort(ctx, s.logger, "invalidate_cache", func(ctx context.Context) error {
		return s.cache.Delete(ctx, keys...)
	})
}

func validateVenueInput(in *VenueInput) error {
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be provided together", apperrors.ErrInvalidInput)
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return fmt.Errorf("%w: latitude out of range", apperrors.ErrInvalidInput)
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return fmt.Errorf("%w: longitude out of range", apperrors.ErrInvalidInput)
	}
	if in.BusinessStatus != "" && !models.IsValidBusinessStatus(in.BusinessStatus) {
		return fmt.Errorf("%w: unknown business status %q", apperrors.ErrInvalidInput, in.BusinessStatus)
	}
	if in.PriceLevel != nil && (*in.PriceLevel < 0 || *in.PriceLevel > 4) {
		return fmt.Errorf("%w: price level must be between 0 and 4", apperrors.ErrInvalidInput)
	}
	return nil
}

func applyVenueInput(v *models.Venue, in *VenueInput) {
	v.Name = strings.TrimSpace(in.Name)
	v.Address = in.Address
	v.Latitude = in.Latitude
	v.Longitude = in.Longitude
	v.Phone = in.Phone
	v.Website = in.Website
	v.BusinessStatus = in.BusinessStatus
	if v.BusinessStatus == "" {
		v.BusinessStatus = models.BusinessStatusOperational
	}
	v.PrimaryCategory = in.PrimaryCategory
	v.Cuisine = in.Cuisine
	v.PriceLevel = in.PriceLevel
	if in.ImageRef != nil {
		v.ImageRef = in.ImageRef
	}
	v.ChainID = in.ChainID
}
