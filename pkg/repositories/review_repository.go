package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// ReviewRepository defines the interface for review data access.
type ReviewRepository interface {
	ListByVenue(ctx context.Context, venueID int64) ([]*models.Review, error)
	GetByID(ctx context.Context, id int64) (*models.Review, error)
	// Create inserts the review and its allergen scores in one transaction.
	Create(ctx context.Context, review *models.Review) error
	// Update replaces rating, comment, visit date, and the full score set.
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id int64) error
}

// reviewRepository implements ReviewRepository using PostgreSQL.
type reviewRepository struct{}

// NewReviewRepository creates a new review repository.
func NewReviewRepository() ReviewRepository {
	return &reviewRepository{}
}

var _ ReviewRepository = (*reviewRepository)(nil)

const reviewSelect = `
	SELECT r.id, r.venue_id, r.user_id, COALESCE(u.display_name, ''), r.rating, r.comment,
	       r.visit_date, r.created_at, r.updated_at,
	       COALESCE((SELECT jsonb_object_agg(s.allergen, s.score)
	                 FROM review_allergen_scores s WHERE s.review_id = r.id), '{}'::jsonb)
	FROM reviews r
	LEFT JOIN users u ON u.id = r.user_id`

func scanReview(row pgx.Row) (*models.Review, error) {
	var rv models.Review
	var scores []byte
	err := row.Scan(&rv.ID, &rv.VenueID, &rv.UserID, &rv.AuthorName, &rv.Rating, &rv.Comment,
		&rv.VisitDate, &rv.CreatedAt, &rv.UpdatedAt, &scores)
	if err != nil {
		return nil, err
	}
	rv.AllergenScores = map[string]int{}
	if err := json.Unmarshal(scores, &rv.AllergenScores); err != nil {
		return nil, fmt.Errorf("failed to decode allergen scores for review %d: %w", rv.ID, err)
	}
	return &rv, nil
}

func (r *reviewRepository) ListByVenue(ctx context.Context, venueID int64) ([]*models.Review, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, reviewSelect+` WHERE r.venue_id = $1 ORDER BY r.created_at DESC`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

func (r *reviewRepository) GetByID(ctx context.Context, id int64) (*models.Review, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rv, err := scanReview(scope.Conn.QueryRow(ctx, reviewSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return rv, nil
}

func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO reviews (venue_id, user_id, rating, comment, visit_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		review.VenueID, review.UserID, review.Rating, review.Comment, review.VisitDate,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			err = apperrors.ErrNotFound
			return err
		}
		return fmt.Errorf("failed to create review: %w", err)
	}

	if err = insertScores(ctx, tx, review.ID, review.AllergenScores); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *reviewRepository) Update(ctx context.Context, review *models.Review) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		UPDATE reviews SET rating = $2, comment = $3, visit_date = $4, updated_at = $5
		WHERE id = $1
		RETURNING updated_at`,
		review.ID, review.Rating, review.Comment, review.VisitDate, time.Now(),
	).Scan(&review.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = apperrors.ErrNotFound
			return err
		}
		return fmt.Errorf("failed to update review: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM review_allergen_scores WHERE review_id = $1`, review.ID); err != nil {
		return fmt.Errorf("failed to clear allergen scores: %w", err)
	}
	if err = insertScores(ctx, tx, review.ID, review.AllergenScores); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertScores(ctx context.Context, tx pgx.Tx, reviewID int64, scores map[string]int) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for allergen, score := range scores {
		batch.Queue(`INSERT INTO review_allergen_scores (review_id, allergen, score) VALUES ($1, $2, $3)`,
			reviewID, allergen, score)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert allergen scores: %w", err)
	}
	return nil
}

func (r *reviewRepository) Delete(ctx context.Context, id int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
