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

// AccountRepository defines the interface for user account data access.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	// GetByEmail matches case-insensitively and includes soft-deleted accounts.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	// PurgeDeletedBefore permanently removes accounts soft-deleted before
	// cutoff. Their reviews and refresh tokens cascade.
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// accountRepository implements AccountRepository using PostgreSQL.
type accountRepository struct{}

// NewAccountRepository creates a new account repository.
func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

var _ AccountRepository = (*accountRepository)(nil)

const accountColumns = `id, email, display_name, password_hash, is_active, role, email_verified,
	deleted_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.IsActive, &a.Role,
		&a.EmailVerified, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	if account.Role == "" {
		account.Role = models.RoleUser
	}

	created, err := scanAccount(scope.Conn.QueryRow(ctx, `
		INSERT INTO users (email, display_name, password_hash, is_active, role, email_verified)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING `+accountColumns,
		account.Email, account.DisplayName, account.PasswordHash, account.Role, account.EmailVerified,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	*account = *created
	return nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	a, err := scanAccount(scope.Conn.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	a, err := scanAccount(scope.Conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, `SELECT `+accountColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (r *accountRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.execOne(ctx,
		`UPDATE users SET deleted_at = now(), is_active = FALSE, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *accountRepository) Restore(ctx context.Context, id int64) error {
	return r.execOne(ctx,
		`UPDATE users SET deleted_at = NULL, is_active = TRUE, updated_at = now() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
}

func (r *accountRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, database.ErrNoScope
	}

	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM users WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge accounts: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *accountRepository) execOne(ctx context.Context, query string, args ...any) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	result, err := scope.Conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
