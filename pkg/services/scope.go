package services

import (
	"context"
	"fmt"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
)

// ScopeProvider acquires a connection scope outside the request middleware.
// *database.DB satisfies it.
type ScopeProvider interface {
	WithScope(ctx context.Context) (context.Context, func(), error)
}

// withConnection holds a pooled connection only while fn runs. Callers keep
// provider round trips outside fn so slow upstreams never pin the pool.
func withConnection(ctx context.Context, scopes ScopeProvider, fn func(ctx context.Context) error) error {
	scoped, release, err := scopes.WithScope(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %v: %w", err, apperrors.ErrDatabaseUnavailable)
	}
	defer release()
	return fn(scoped)
}
