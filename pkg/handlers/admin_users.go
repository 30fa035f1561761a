package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/audit"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/middleware"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// SetActiveRequest is the body of PUT /admin/users/{id}/active.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// UserListResponse wraps the account list.
type UserListResponse struct {
	Users []*models.Account `json:"users"`
}

// AdminUserHandler lets admins manage accounts.
type AdminUserHandler struct {
	userService services.UserAdminService
	auditor     *audit.SecurityAuditor
	errors      *ErrorWriter
	logger      *zap.Logger
}

// NewAdminUserHandler creates a new admin user handler.
func NewAdminUserHandler(userService services.UserAdminService, auditor *audit.SecurityAuditor, errWriter *ErrorWriter, logger *zap.Logger) *AdminUserHandler {
	return &AdminUserHandler{
		userService: userService,
		auditor:     auditor,
		errors:      errWriter,
		logger:      logger,
	}
}

// RegisterRoutes registers the admin user routes on the given mux.
func (h *AdminUserHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /admin/users", authMiddleware.RequireAdmin(scope(h.List)))
	mux.HandleFunc("PUT /admin/users/{id}/active", authMiddleware.RequireAdmin(scope(h.SetActive)))
}

// List handles GET /admin/users
func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, UserListResponse{Users: users})
}

// SetActive handles PUT /admin/users/{id}/active
func (h *AdminUserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	actorID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		h.errors.Error(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	var req SetActiveRequest
	if !h.errors.decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		h.errors.Error(w, http.StatusBadRequest, "invalid_input", "active is required")
		return
	}

	account, err := h.userService.SetActive(r.Context(), actorID, userID, *req.Active)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	action := "user.deactivate"
	if *req.Active {
		action = "user.activate"
	}
	h.auditor.LogAdminAction(r.Context(), action, strconv.FormatInt(userID, 10), middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusOK, account)
}
