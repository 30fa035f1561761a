package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// ChainRepository defines the interface for chain data access.
type ChainRepository interface {
	List(ctx context.Context) ([]*models.Chain, error)
	GetByID(ctx context.Context, id int64) (*models.Chain, error)
	// SlugExists reports whether slug is used by a chain other than excludeID.
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	Create(ctx context.Context, chain *models.Chain) error
	Update(ctx context.Context, chain *models.Chain) error
	// Delete removes a chain after unassigning its venues, returning how many
	// venues were unassigned.
	Delete(ctx context.Context, id int64) (int64, error)
}

// chainRepository implements ChainRepository using PostgreSQL.
type chainRepository struct{}

// NewChainRepository creates a new chain repository.
func NewChainRepository() ChainRepository {
	return &chainRepository{}
}

var _ ChainRepository = (*chainRepository)(nil)

const chainColumns = `c.id, c.name, c.slug, c.description, c.logo_path, c.featured_image_path,
	c.category, c.website, c.created_at, c.updated_at`

func scanChain(row pgx.Row, extra ...any) (*models.Chain, error) {
	var c models.Chain
	dest := []any{
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.LogoPath, &c.FeaturedImagePath,
		&c.Category, &c.Website, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *chainRepository) List(ctx context.Context) ([]*models.Chain, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT ` + chainColumns + `, COUNT(v.id)
		FROM chains c
		LEFT JOIN venues v ON v.chain_id = c.id
		GROUP BY c.id
		ORDER BY c.name`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}
	defer rows.Close()

	var chains []*models.Chain
	for rows.Next() {
		var count int
		c, err := scanChain(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		c.VenueCount = count
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chains: %w", err)
	}

	return chains, nil
}

func (r *chainRepository) GetByID(ctx context.Context, id int64) (*models.Chain, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `
		SELECT ` + chainColumns + `,
			(SELECT COUNT(*) FROM venues v WHERE v.chain_id = c.id)
		FROM chains c
		WHERE c.id = $1`

	var count int
	c, err := scanChain(scope.Conn.QueryRow(ctx, query, id), &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}
	c.VenueCount = count
	return c, nil
}

func (r *chainRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, database.ErrNoScope
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chains WHERE slug = $1 AND id <> $2)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

func (r *chainRepository) Create(ctx context.Context, chain *models.Chain) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO chains AS c (name, slug, description, logo_path, featured_image_path, category, website)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + chainColumns

	created, err := scanChain(scope.Conn.QueryRow(ctx, query,
		chain.Name, chain.Slug, chain.Description, chain.LogoPath, chain.FeaturedImagePath,
		chain.Category, chain.Website,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q already in use", apperrors.ErrConflict, chain.Slug)
		}
		return fmt.Errorf("failed to create chain: %w", err)
	}
	*chain = *created
	return nil
}

func (r *chainRepository) Update(ctx context.Context, chain *models.Chain) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		UPDATE chains AS c
		SET name = $2, slug = $3, description = $4, logo_path = $5, featured_image_path = $6,
		    category = $7, website = $8, updated_at = $9
		WHERE c.id = $1
		RETURNING ` + chainColumns

	updated, err := scanChain(scope.Conn.QueryRow(ctx, query,
		chain.ID, chain.Name, chain.Slug, chain.Description, chain.LogoPath, chain.FeaturedImagePath,
		chain.Category, chain.Website, time.Now(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q already in use", apperrors.ErrConflict, chain.Slug)
		}
		return fmt.Errorf("failed to update chain: %w", err)
	}
	*chain = *updated
	return nil
}

func (r *chainRepository) Delete(ctx context.Context, id int64) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, database.ErrNoScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	unassigned, err := tx.Exec(ctx, `UPDATE venues SET chain_id = NULL, updated_at = now() WHERE chain_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to unassign venues: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM chains WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chain: %w", err)
	}
	if result.RowsAffected() == 0 {
		err = apperrors.ErrNotFound
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return unassigned.RowsAffected(), nil
}
