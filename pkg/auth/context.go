package auth

import (
	"context"
	"fmt"
)

// GetUserIDFromContext extracts the user ID from JWT claims in the context.
// Returns empty string if not authenticated or claims are missing.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}

// GetAccountIDFromContext returns the authenticated account id, if any.
func GetAccountIDFromContext(ctx context.Context) (int64, bool) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return 0, false
	}
	id, err := claims.AccountID()
	if err != nil {
		return 0, false
	}
	return id, true
}

// RequireAccountIDFromContext extracts the account id and returns an error if not found.
func RequireAccountIDFromContext(ctx context.Context) (int64, error) {
	id, ok := GetAccountIDFromContext(ctx)
	if !ok {
		return 0, fmt.Errorf("account ID not found in context")
	}
	return id, nil
}

// IsAdminContext reports whether the request was authenticated as an admin.
func IsAdminContext(ctx context.Context) bool {
	claims, ok := GetClaims(ctx)
	return ok && claims != nil && claims.IsAdmin()
}
