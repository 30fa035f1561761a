package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/audit"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/middleware"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// CredentialsRequest is the body of login and restore.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token for clients that do not use cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse is returned whenever a new token pair is issued.
type SessionResponse struct {
	User         *models.Account `json:"user"`
	AccessToken  string          `json:"access_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	RefreshToken string          `json:"refresh_token"`
}

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	accountService services.AccountService
	cookies        auth.CookieSettings
	auditor        *audit.SecurityAuditor
	errors         *ErrorWriter
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(
	accountService services.AccountService,
	cookies auth.CookieSettings,
	auditor *audit.SecurityAuditor,
	errWriter *ErrorWriter,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		cookies:        cookies,
		auditor:        auditor,
		errors:         errWriter,
		logger:         logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /auth/signup", scope(h.Signup))
	mux.HandleFunc("POST /auth/login", scope(h.Login))
	mux.HandleFunc("POST /auth/refresh", scope(h.Refresh))
	mux.HandleFunc("POST /auth/logout", scope(h.Logout))
	mux.HandleFunc("POST /auth/restore", scope(h.Restore))
	mux.HandleFunc("GET /auth/me", authMiddleware.RequireAuth(scope(h.Me)))
	mux.HandleFunc("DELETE /auth/account", authMiddleware.RequireAuth(scope(h.DeleteAccount)))
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.errors.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.accountService.Signup(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.writeSession(w, http.StatusCreated, session)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.errors.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.accountService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.auditFailure(r, "login", req.Email, err)
		h.errors.Write(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// Refresh handles POST /auth/refresh. The token is read from the body,
// falling back to the refresh cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshToken(r)
	if raw == "" {
		h.errors.Write(w, r, apperrors.ErrInvalidToken)
		return
	}
	session, err := h.accountService.Refresh(r.Context(), raw)
	if err != nil {
		h.auditFailure(r, "refresh", "", err)
		if errors.Is(err, apperrors.ErrInvalidToken) {
			http.SetCookie(w, h.cookies.ClearRefreshCookie())
		}
		h.errors.Write(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// Logout handles POST /auth/logout. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := h.refreshToken(r); raw != "" {
		if err := h.accountService.Logout(r.Context(), raw); err != nil {
			h.logger.Warn("Failed to revoke refresh token on logout", zap.Error(err))
		}
	}
	http.SetCookie(w, h.cookies.ClearRefreshCookie())
	h.errors.JSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Restore handles POST /auth/restore
func (h *AuthHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.errors.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.accountService.RestoreAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		h.auditFailure(r, "restore", req.Email, err)
		h.errors.Write(w, r, err)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		h.errors.Error(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	account, err := h.accountService.Me(r.Context(), userID)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, account)
}

// DeleteAccount handles DELETE /auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		h.errors.Error(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	if err := h.accountService.DeleteAccount(r.Context(), userID); err != nil {
		h.errors.Write(w, r, err)
		return
	}
	http.SetCookie(w, h.cookies.ClearRefreshCookie())
	h.errors.JSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Account deleted. It can be restored within 30 days.",
	})
}

func (h *AuthHandler) refreshToken(r *http.Request) string {
	var req RefreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		// An unreadable body falls through to the cookie.
		_ = decodeBody(r, &req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if c, err := r.Cookie(auth.RefreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, s *services.AuthSession) {
	http.SetCookie(w, h.cookies.NewRefreshCookie(s.RefreshToken, s.RefreshExpiresAt))
	h.errors.JSON(w, status, SessionResponse{
		User:         s.Account,
		AccessToken:  s.AccessToken,
		ExpiresAt:    s.AccessExpiresAt,
		RefreshToken: s.RefreshToken,
	})
}

func (h *AuthHandler) auditFailure(r *http.Request, operation, email string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		reason = "invalid_credentials"
	case errors.Is(err, apperrors.ErrInvalidToken):
		reason = "invalid_token"
	case errors.Is(err, apperrors.ErrAccountDeleted):
		reason = "account_deleted"
	case errors.Is(err, apperrors.ErrRestoreWindowExpired):
		reason = "restore_window_expired"
	case errors.Is(err, apperrors.ErrForbidden):
		reason = "account_disabled"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return
	}
	h.auditor.LogAuthFailure(r.Context(), operation, email, reason, middleware.ClientIP(r))
}
