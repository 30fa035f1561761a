package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

const maxCommentRunes = 2000

// ReviewInput is the user-editable part of a review.
type ReviewInput struct {
	Rating         int            `json:"rating"`
	Comment        string         `json:"comment"`
	VisitDate      *time.Time     `json:"visit_date"`
	AllergenScores map[string]int `json:"allergen_scores"`
}

// ReviewService manages user reviews and keeps venue aggregates fresh.
type ReviewService interface {
	ListByVenue(ctx context.Context, venueID uuid.UUID) ([]*models.Review, error)
	Create(ctx context.Context, venueID uuid.UUID, userID int64, input *ReviewInput) (*models.Review, error)
	// Update is allowed for the author only.
	Update(ctx context.Context, reviewID, userID int64, input *ReviewInput) (*models.Review, error)
	// Delete is allowed for the author or an admin.
	Delete(ctx context.Context, reviewID, userID int64, isAdmin bool) error
}

type reviewService struct {
	reviewRepo repositories.ReviewRepository
	venueRepo  repositories.VenueRepository
	cache      cache.Cache
	logger     *zap.Logger
	now        func() time.Time
}

// NewReviewService creates a review service.
func NewReviewService(
	reviewRepo repositories.ReviewRepository,
	venueRepo repositories.VenueRepository,
	c cache.Cache,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{
		reviewRepo: reviewRepo,
		venueRepo:  venueRepo,
		cache:      c,
		logger:     logger.Named("reviews"),
		now:        time.Now,
	}
}

var _ ReviewService = (*reviewService)(nil)

func (s *reviewService) ListByVenue(ctx context.Context, venueID uuid.UUID) ([]*models.Review, error) {
	venue, err := s.venueRepo.GetByUUID(ctx, venueID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.reviewRepo.ListByVenue(ctx, venue.ID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	return reviews, nil
}

func (s *reviewService) Create(ctx context.Context, venueID uuid.UUID, userID int64, input *ReviewInput) (*models.Review, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	venue, err := s.venueRepo.GetByUUID(ctx, venueID)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		VenueID:        venue.ID,
		UserID:         userID,
		Rating:         input.Rating,
		Comment:        strings.TrimSpace(input.Comment),
		VisitDate:      input.VisitDate,
		AllergenScores: input.AllergenScores,
	}
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, venue.ID)
	return review, nil
}

func (s *reviewService) Update(ctx context.Context, reviewID, userID int64, input *ReviewInput) (*models.Review, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	review, err := s.reviewRepo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.UserID != userID {
		return nil, fmt.Errorf("%w: only the author can edit a review", apperrors.ErrForbidden)
	}

	review.Rating = input.Rating
	review.Comment = strings.TrimSpace(input.Comment)
	review.VisitDate = input.VisitDate
	review.AllergenScores = input.AllergenScores
	if err := s.reviewRepo.Update(ctx, review); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, review.VenueID)
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, reviewID, userID int64, isAdmin bool) error {
	review, err := s.reviewRepo.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.UserID != userID && !isAdmin {
		return fmt.Errorf("%w: only the author or an admin can delete a review", apperrors.ErrForbidden)
	}
	if err := s.reviewRepo.Delete(ctx, reviewID); err != nil {
		return err
	}

	if isAdmin && review.UserID != userID {
		s.logger.Info("Review removed by moderator",
			zap.Int64("review_id", reviewID),
			zap.Int64("moderator_id", userID))
	}
	s.afterWrite(ctx, review.VenueID)
	return nil
}

// afterWrite refreshes the denormalised scores and drops the cached listing.
func (s *reviewService) afterWrite(ctx context.Context, venueID int64) {
	BestEffort(ctx, s.logger, "refresh_allergen_scores", func(ctx context.Context) error {
		return s.venueRepo.RefreshAllergenScores(ctx, venueID)
	})
	BestEffort(ctx, s.logger, "invalidate_cache", func(ctx context.Context) error {
		return s.cache.Delete(ctx, cache.APIKey("/restaurants"))
	})
}

func (s *reviewService) validate(in *ReviewInput) error {
	if in == nil {
		return fmt.Errorf("%w: review body is required", apperrors.ErrInvalidInput)
	}
	if in.Rating < 1 || in.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", apperrors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Comment) > maxCommentRunes {
		return fmt.Errorf("%w: comment must be at most %d characters", apperrors.ErrInvalidInput, maxCommentRunes)
	}
	if in.VisitDate != nil && in.VisitDate.After(s.now()) {
		return fmt.Errorf("%w: visit date cannot be in the future", apperrors.ErrInvalidInput)
	}
	for code, score := range in.AllergenScores {
		if !models.IsValidAllergen(code) {
			return fmt.Errorf("%w: unknown allergen %q", apperrors.ErrInvalidInput, code)
		}
		if score < 0 || score > models.MaxAllergenScore {
			return fmt.Errorf("%w: score for %s must be between 0 and %d", apperrors.ErrInvalidInput, code, models.MaxAllergenScore)
		}
	}
	return nil
}
