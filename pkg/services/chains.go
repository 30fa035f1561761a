package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// ChainInput is the admin-editable part of a chain.
type ChainInput struct {
	Name              string  `json:"name"`
	Slug              string  `json:"slug"`
	Description       *string `json:"description"`
	LogoPath          *string `json:"logo_path"`
	FeaturedImagePath *string `json:"featured_image_path"`
	Category          *string `json:"category"`
	Website           *string `json:"website"`
}

// ChainService manages restaurant chains.
type ChainService interface {
	List(ctx context.Context) ([]*models.Chain, error)
	Create(ctx context.Context, input *ChainInput) (*models.Chain, error)
	Update(ctx context.Context, id int64, input *ChainInput) (*models.Chain, error)
	// Delete removes the chain and returns how many venues were unassigned.
	Delete(ctx context.Context, id int64) (int64, error)
}

type chainService struct {
	chainRepo repositories.ChainRepository
	cache     cache.Cache
	logger    *zap.Logger
}

// NewChainService creates a chain service.
func NewChainService(chainRepo repositories.ChainRepository, c cache.Cache, logger *zap.Logger) ChainService {
	return &chainService{
		chainRepo: chainRepo,
		cache:     c,
		logger:    logger.Named("chains"),
	}
}

var _ ChainService = (*chainService)(nil)

func (s *chainService) List(ctx context.Context) ([]*models.Chain, error) {
	chains, err := s.chainRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if chains == nil {
		chains = []*models.Chain{}
	}
	return chains, nil
}

func (s *chainService) Create(ctx context.Context, input *ChainInput) (*models.Chain, error) {
	chain, err := s.prepare(ctx, 0, input)
	if err != nil {
		return nil, err
	}
	if err := s.chainRepo.Create(ctx, chain); err != nil {
		return nil, err
	}
	return chain, nil
}

func (s *chainService) Update(ctx context.Context, id int64, input *ChainInput) (*models.Chain, error) {
	if _, err := s.chainRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	chain, err := s.prepare(ctx, id, input)
	if err != nil {
		return nil, err
	}
	chain.ID = id
	if err := s.chainRepo.Update(ctx, chain); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return chain, nil
}

func (s *chainService) Delete(ctx context.Context, id int64) (int64, error) {
	unassigned, err := s.chainRepo.Delete(ctx, id)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Chain deleted",
		zap.Int64("chain_id", id),
		zap.Int64("unassigned_venues", unassigned))
	s.invalidate(ctx)
	return unassigned, nil
}

// prepare validates input, derives the slug, and checks it is free.
func (s *chainService) prepare(ctx context.Context, id int64, input *ChainInput) (*models.Chain, error) {
	if input == nil || strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(input.Name)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase letters, digits, and hyphens", apperrors.ErrInvalidInput)
	}

	taken, err := s.chainRepo.SlugExists(ctx, slug, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: slug %q already in use", apperrors.ErrConflict, slug)
	}

	return &models.Chain{
		Name:              strings.TrimSpace(input.Name),
		Slug:              slug,
		Description:       input.Description,
		LogoPath:          input.LogoPath,
		FeaturedImagePath: input.FeaturedImagePath,
		Category:          input.Category,
		Website:           input.Website,
	}, nil
}

// Venue listings embed chains.
func (s *chainService) invalidate(ctx context.Context) {
	BestEffort(ctx, s.logger, "invalidate_cache", func(ctx context.Context) error {
		return s.cache.Delete(ctx, cache.APIKey("/restaurants"))
	})
}

// Slugify lowercases name and joins its alphanumeric runs with hyphens.
func Slugify(name string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
