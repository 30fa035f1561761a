package auth

import (
	"net/http"
	"net/url"
	"time"
)

// RefreshTokenCookie carries the refresh token for browser clients.
const RefreshTokenCookie = "trustdiner_refresh"

// refreshCookiePath limits the refresh cookie to the auth endpoints.
const refreshCookiePath = "/auth"

// CookieSettings contains cookie security settings derived from base URL.
type CookieSettings struct {
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
}

// DeriveCookieSettings determines cookie security from the public base URL:
// plain http (local development) allows insecure cookies, anything else
// (including unparsable URLs) requires HTTPS.
func DeriveCookieSettings(baseURL string) CookieSettings {
	parsedURL, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return CookieSettings{Secure: true}
	}
	return CookieSettings{Secure: parsedURL.Scheme != "http"}
}

// NewRefreshCookie builds the HttpOnly cookie carrying a raw refresh token.
func (s CookieSettings) NewRefreshCookie(raw string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    raw,
		Path:     refreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearRefreshCookie expires the refresh cookie.
func (s CookieSettings) ClearRefreshCookie() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
