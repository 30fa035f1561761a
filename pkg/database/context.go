package database

import (
	"context"
	"errors"
)

type contextKey string

// ScopeKey is the context key for the request-scoped database connection.
const ScopeKey contextKey = "dbScope"

// ErrNoScope is returned when a repository is called without a connection scope.
var ErrNoScope = errors.New("no database scope in context")

// GetScope retrieves the database scope from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	if !ok || scope == nil || scope.Conn == nil {
		return nil, false
	}
	return scope, true
}

// SetScope stores the database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}
