package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// RefreshTokenRepository defines the interface for refresh token storage.
// Tokens are addressed by the SHA-256 hash of the raw value.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	// Consume revokes a usable token and returns it. A missing, expired, or
	// already revoked token yields ErrInvalidToken, so only one of two
	// concurrent exchanges of the same token can succeed.
	Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// Revoke marks the token revoked. Unknown tokens are not an error.
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}

// refreshTokenRepository implements RefreshTokenRepository using PostgreSQL.
type refreshTokenRepository struct{}

// NewRefreshTokenRepository creates a new refresh token repository.
func NewRefreshTokenRepository() RefreshTokenRepository {
	return &refreshTokenRepository{}
}

var _ RefreshTokenRepository = (*refreshTokenRepository)(nil)

func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		token.UserID, token.TokenHash, token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepository) Consume(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	var t models.RefreshToken
	err := scope.Conn.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
		RETURNING id, user_id, token_hash, expires_at, revoked_at, created_at`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	return &t, nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	_, err := scope.Conn.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, database.ErrNoScope
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
