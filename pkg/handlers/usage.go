package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// UsageHandler reports external provider usage and cost.
type UsageHandler struct {
	tracker services.UsageTracker
	errors  *ErrorWriter
	logger  *zap.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(tracker services.UsageTracker, errWriter *ErrorWriter, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{tracker: tracker, errors: errWriter, logger: logger}
}

// RegisterRoutes registers the usage route on the given mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /admin/usage", authMiddleware.RequireAdmin(scope(h.Summary)))
}

// Summary handles GET /admin/usage
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.tracker.Summary(r.Context())
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, summary)
}
