// Package testhelpers provides utilities for testing TrustDiner API components.
package testhelpers

import (
	"testing"
	"time"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/config"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// TestJWTSecret signs tokens produced by TestTokenIssuer.
const TestJWTSecret = "test-secret-for-unit-tests-only"

// TestAuthConfig returns an auth configuration suitable for tests.
func TestAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       TestJWTSecret,
		Issuer:          "trustdiner-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

// TestTokenIssuer returns an issuer built from TestAuthConfig.
func TestTokenIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(TestAuthConfig())
	if err != nil {
		t.Fatalf("Failed to create token issuer: %v", err)
	}
	return issuer
}

// GenerateTestJWT issues a signed access token for the given account.
func GenerateTestJWT(t *testing.T, id int64, email string, role string) string {
	t.Helper()

	token, _, err := TestTokenIssuer(t).IssueAccessToken(&models.Account{
		ID:    id,
		Email: email,
		Role:  role,
	})
	if err != nil {
		t.Fatalf("Failed to issue test token: %v", err)
	}
	return token
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(t *testing.T, id int64, email string, role string) string {
	return "Bearer " + GenerateTestJWT(t, id, email, role)
}
