package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// Relevance scores assigned by Search, highest first.
const (
	RelevanceName     = 100
	RelevanceCategory = 80
	RelevanceAddress  = 60
	RelevanceTerm     = 40
)

// VenueMatch is a search hit with its relevance score.
type VenueMatch struct {
	Venue     *models.Venue
	Relevance int
}

// VenueRepository defines the interface for venue data access.
type VenueRepository interface {
	// Search matches operational venues with coordinates whose name, address,
	// category, or cuisine contains any term. Ordered by relevance, then name.
	Search(ctx context.Context, query string, terms []string, limit int) ([]VenueMatch, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Venue, error)
	GetByPlaceID(ctx context.Context, placeID string) (*models.Venue, error)
	// ExistingPlaceIDs returns the venue UUID for each place id already stored.
	ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]uuid.UUID, error)
	// InsertImported inserts an imported venue unless one with the same place
	// id exists. On conflict v is overwritten with the stored row and
	// inserted is false.
	InsertImported(ctx context.Context, v *models.Venue) (inserted bool, err error)
	Create(ctx context.Context, v *models.Venue) error
	Update(ctx context.Context, v *models.Venue) error
	// Delete removes a venue. Returns ErrHasDependents when it has reviews.
	Delete(ctx context.Context, id uuid.UUID) error
	ListDetails(ctx context.Context, limit, offset int) ([]*models.VenueDetail, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.VenueDetail, error)
	// RefreshAllergenScores recomputes the denormalised allergen_scores column.
	RefreshAllergenScores(ctx context.Context, venueID int64) error
}

// venueRepository implements VenueRepository using PostgreSQL.
type venueRepository struct{}

// NewVenueRepository creates a new venue repository.
func NewVenueRepository() VenueRepository {
	return &venueRepository{}
}

var _ VenueRepository = (*venueRepository)(nil)

const venueColumns = `v.id, v.uuid, v.name, v.address, v.latitude, v.longitude, v.phone, v.website,
	v.business_status, v.primary_category, v.cuisine, v.price_level, v.image_ref, v.tags,
	v.chain_id, v.created_at, v.updated_at`

// venueAggregates joins review counts and per-allergen averages onto v.
const venueAggregates = `
	LEFT JOIN (
		SELECT venue_id, COUNT(*) AS review_count, AVG(rating)::float8 AS avg_rating
		FROM reviews GROUP BY venue_id
	) r ON r.venue_id = v.id
	LEFT JOIN (
		SELECT venue_id, jsonb_object_agg(allergen, jsonb_build_object('average', avg_score, 'count', cnt)) AS scores
		FROM (
			SELECT rv.venue_id, s.allergen, AVG(s.score)::float8 AS avg_score, COUNT(*) AS cnt
			FROM review_allergen_scores s
			JOIN reviews rv ON rv.id = s.review_id
			GROUP BY rv.venue_id, s.allergen
		) per_allergen
		GROUP BY venue_id
	) a ON a.venue_id = v.id`

func scanVenue(row pgx.Row, extra ...any) (*models.Venue, error) {
	var v models.Venue
	var tags []byte
	dest := []any{
		&v.ID, &v.UUID, &v.Name, &v.Address, &v.Latitude, &v.Longitude, &v.Phone, &v.Website,
		&v.BusinessStatus, &v.PrimaryCategory, &v.Cuisine, &v.PriceLevel, &v.ImageRef, &tags,
		&v.ChainID, &v.CreatedAt, &v.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &v.Provenance); err != nil {
		return nil, fmt.Errorf("failed to decode tags for venue %d: %w", v.ID, err)
	}
	return &v, nil
}

func scanVenueDetail(row pgx.Row) (*models.VenueDetail, error) {
	var count int
	var scores []byte
	d := &models.VenueDetail{}
	v, err := scanVenue(row, &count, &d.AverageRating, &scores)
	if err != nil {
		return nil, err
	}
	d.Venue = *v
	d.ReviewCount = count
	d.AllergenScores = map[string]models.AllergenAverage{}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &d.AllergenScores); err != nil {
			return nil, fmt.Errorf("failed to decode allergen scores for venue %d: %w", v.ID, err)
		}
	}
	return d, nil
}

func (r *venueRepository) Search(ctx context.Context, query string, terms []string, limit int) ([]VenueMatch, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		patterns = append(patterns, containsPattern(t))
	}

	sqlQuery := `
		SELECT ` + venueColumns + `,
			CASE
				WHEN v.name ILIKE $1 THEN $4::int
				WHEN v.primary_category ILIKE $1 OR v.cuisine ILIKE $1 THEN $5::int
				WHEN v.address ILIKE $1 THEN $6::int
				ELSE $7::int
			END AS relevance
		FROM venues v
		WHERE v.business_status = 'OPERATIONAL'
		  AND v.latitude IS NOT NULL AND v.longitude IS NOT NULL
		  AND (v.name ILIKE ANY($2)
		       OR v.address ILIKE ANY($2)
		       OR v.primary_category ILIKE ANY($2)
		       OR v.cuisine ILIKE ANY($2))
		ORDER BY relevance DESC, v.name ASC
		LIMIT $3`

	rows, err := scope.Conn.Query(ctx, sqlQuery, containsPattern(query), patterns, limit,
		RelevanceName, RelevanceCategory, RelevanceAddress, RelevanceTerm)
	if err != nil {
		return nil, fmt.Errorf("failed to search venues: %w", err)
	}
	defer rows.Close()

	var matches []VenueMatch
	for rows.Next() {
		var relevance int
		v, err := scanVenue(rows, &relevance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		matches = append(matches, VenueMatch{Venue: v, Relevance: relevance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating venues: %w", err)
	}

	return matches, nil
}

func (r *venueRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Venue, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	v, err := scanVenue(scope.Conn.QueryRow(ctx, `SELECT `+venueColumns+` FROM venues v WHERE v.uuid = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return v, nil
}

func (r *venueRepository) GetByPlaceID(ctx context.Context, placeID string) (*models.Venue, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	v, err := scanVenue(scope.Conn.QueryRow(ctx,
		`SELECT `+venueColumns+` FROM venues v WHERE v.tags->>'place_id' = $1`, placeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get venue by place id: %w", err)
	}
	return v, nil
}

func (r *venueRepository) ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]uuid.UUID, error) {
	existing := make(map[string]uuid.UUID)
	if len(placeIDs) == 0 {
		return existing, nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT tags->>'place_id', uuid FROM venues WHERE tags->>'place_id' = ANY($1)`, placeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check place ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var placeID string
		var id uuid.UUID
		if err := rows.Scan(&placeID, &id); err != nil {
			return nil, fmt.Errorf("failed to scan place id: %w", err)
		}
		existing[placeID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating place ids: %w", err)
	}

	return existing, nil
}

func (r *venueRepository) InsertImported(ctx context.Context, v *models.Venue) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, database.ErrNoScope
	}

	placeID, ok := v.PlaceID()
	if !ok {
		return false, fmt.Errorf("%w: imported venue requires a place id", apperrors.ErrInvalidInput)
	}
	tags, err := json.Marshal(v.Provenance)
	if err != nil {
		return false, fmt.Errorf("failed to encode tags: %w", err)
	}
	if v.UUID == uuid.Nil {
		v.UUID = uuid.New()
	}

	query := `
		INSERT INTO venues AS v (uuid, name, address, latitude, longitude, phone, website,
			business_status, primary_category, cuisine, price_level, image_ref, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT ((tags->>'place_id')) WHERE (tags->>'place_id') IS NOT NULL DO NOTHING
		RETURNING ` + venueColumns

	inserted, err := scanVenue(scope.Conn.QueryRow(ctx, query,
		v.UUID, v.Name, v.Address, v.Latitude, v.Longitude, v.Phone, v.Website,
		v.BusinessStatus, v.PrimaryCategory, v.Cuisine, v.PriceLevel, v.ImageRef, tags,
	))
	if err == nil {
		*v = *inserted
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to insert venue: %w", err)
	}

	// Lost the race to a concurrent import of the same place.
	existing, err := r.GetByPlaceID(ctx, placeID)
	if err != nil {
		return false, fmt.Errorf("failed to load existing venue after conflict: %w", err)
	}
	*v = *existing
	return false, nil
}

func (r *venueRepository) Create(ctx context.Context, v *models.Venue) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	tags, err := json.Marshal(v.Provenance)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	if v.UUID == uuid.Nil {
		v.UUID = uuid.New()
	}

	query := `
		INSERT INTO venues AS v (uuid, name, address, latitude, longitude, phone, website,
			business_status, primary_category, cuisine, price_level, image_ref, tags, chain_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + venueColumns

	created, err := scanVenue(scope.Conn.QueryRow(ctx, query,
		v.UUID, v.Name, v.Address, v.Latitude, v.Longitude, v.Phone, v.Website,
		v.BusinessStatus, v.PrimaryCategory, v.Cuisine, v.PriceLevel, v.ImageRef, tags, v.ChainID,
	))
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: venue with this place id already exists", apperrors.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: chain does not exist", apperrors.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create venue: %w", err)
	}
	*v = *created
	return nil
}

func (r *venueRepository) Update(ctx context.Context, v *models.Venue) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	tags, err := json.Marshal(v.Provenance)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
		UPDATE venues AS v
		SET name = $2, address = $3, latitude = $4, longitude = $5, phone = $6, website = $7,
		    business_status = $8, primary_category = $9, cuisine = $10, price_level = $11,
		    image_ref = $12, tags = $13, chain_id = $14, updated_at = $15
		WHERE v.uuid = $1
		RETURNING ` + venueColumns

	updated, err := scanVenue(scope.Conn.QueryRow(ctx, query,
		v.UUID, v.Name, v.Address, v.Latitude, v.Longitude, v.Phone, v.Website,
		v.BusinessStatus, v.PrimaryCategory, v.Cuisine, v.PriceLevel, v.ImageRef, tags, v.ChainID, time.Now(),
	))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.ErrNotFound
		case isUniqueViolation(err):
			return fmt.Errorf("%w: venue with this place id already exists", apperrors.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: chain does not exist", apperrors.ErrInvalidInput)
		}
		return fmt.Errorf("failed to update venue: %w", err)
	}
	*v = *updated
	return nil
}

func (r *venueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	result, err := scope.Conn.Exec(ctx, `
		DELETE FROM venues v
		WHERE v.uuid = $1
		  AND NOT EXISTS (SELECT 1 FROM reviews r WHERE r.venue_id = v.id)`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.ErrHasDependents
		}
		return fmt.Errorf("failed to delete venue: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := scope.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM venues WHERE uuid = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check venue: %w", err)
	}
	if exists {
		return apperrors.ErrHasDependents
	}
	return apperrors.ErrNotFound
}

func (r *venueRepository) ListDetails(ctx context.Context, limit, offset int) ([]*models.VenueDetail, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT ` + venueColumns + `, COALESCE(r.review_count, 0), r.avg_rating, a.scores
		FROM venues v` + venueAggregates + `
		WHERE v.business_status = 'OPERATIONAL'
		ORDER BY v.name ASC, v.id ASC
		LIMIT $1 OFFSET $2`

	rows, err := scope.Conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	var venues []*models.VenueDetail
	for rows.Next() {
		d, err := scanVenueDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating venues: %w", err)
	}

	return venues, nil
}

func (r *venueRepository) GetDetail(ctx context.Context, id uuid.UUID) (*models.VenueDetail, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT ` + venueColumns + `, COALESCE(r.review_count, 0), r.avg_rating, a.scores
		FROM venues v` + venueAggregates + `
		WHERE v.uuid = $1`

	d, err := scanVenueDetail(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get venue detail: %w", err)
	}
	return d, nil
}

func (r *venueRepository) RefreshAllergenScores(ctx context.Context, venueID int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE venues
		SET allergen_scores = COALESCE((
			SELECT jsonb_object_agg(allergen, avg_score)
			FROM (
				SELECT s.allergen, ROUND(AVG(s.score)::numeric, 2) AS avg_score
				FROM review_allergen_scores s
				JOIN reviews rv ON rv.id = s.review_id
				WHERE rv.venue_id = $1
				GROUP BY s.allergen
			) per_allergen
		), '{}'::jsonb)
		WHERE id = $1`, venueID)
	if err != nil {
		return fmt.Errorf("failed to refresh allergen scores: %w", err)
	}
	return nil
}
