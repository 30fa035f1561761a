package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/audit"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/middleware"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// VenueListResponse wraps a page of venues.
type VenueListResponse struct {
	Restaurants []*models.VenueDetail `json:"restaurants"`
	Count       int                   `json:"count"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
}

// VenueHandler serves the restaurant catalogue and its admin edits.
type VenueHandler struct {
	venueService services.VenueService
	auditor      *audit.SecurityAuditor
	errors       *ErrorWriter
	logger       *zap.Logger
}

// NewVenueHandler creates a new venue handler.
func NewVenueHandler(venueService services.VenueService, auditor *audit.SecurityAuditor, errWriter *ErrorWriter, logger *zap.Logger) *VenueHandler {
	return &VenueHandler{
		venueService: venueService,
		auditor:      auditor,
		errors:       errWriter,
		logger:       logger,
	}
}

// RegisterRoutes registers the venue routes on the given mux.
func (h *VenueHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /restaurants", scope(h.List))
	mux.HandleFunc("GET /restaurants/{uuid}", scope(h.Get))

	mux.HandleFunc("POST /admin/restaurants", authMiddleware.RequireAdmin(scope(h.Create)))
	mux.HandleFunc("PUT /admin/restaurants/{uuid}", authMiddleware.RequireAdmin(scope(h.Update)))
	mux.HandleFunc("DELETE /admin/restaurants/{uuid}", authMiddleware.RequireAdmin(scope(h.Delete)))
}

// List handles GET /restaurants?limit=&offset=
func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", services.DefaultVenuePageSize)
	if !ok || limit == 0 || limit > services.MaxVenuePageSize {
		h.errors.Error(w, http.StatusBadRequest, "invalid_input", "limit must be between 1 and 200")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		h.errors.Error(w, http.StatusBadRequest, "invalid_input", "offset must not be negative")
		return
	}

	venues, err := h.venueService.List(r.Context(), limit, offset)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, VenueListResponse{
		Restaurants: venues,
		Count:       len(venues),
		Limit:       limit,
		Offset:      offset,
	})
}

// Get handles GET /restaurants/{uuid}
func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseVenueUUID(w, r, h.logger)
	if !ok {
		return
	}
	venue, err := h.venueService.Get(r.Context(), id)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, venue)
}

// Create handles POST /admin/restaurants
func (h *VenueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.VenueInput
	if !h.errors.decodeJSON(w, r, &input) {
		return
	}
	venue, err := h.venueService.Create(r.Context(), &input)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.auditor.LogAdminAction(r.Context(), "venue.create", venue.UUID.String(), middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusCreated, venue)
}

// Update handles PUT /admin/restaurants/{uuid}
func (h *VenueHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseVenueUUID(w, r, h.logger)
	if !ok {
		return
	}
	var input services.VenueInput
	if !h.errors.decodeJSON(w, r, &input) {
		return
	}
	venue, err := h.venueService.Update(r.Context(), id, &input)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.auditor.LogAdminAction(r.Context(), "venue.update", id.String(), middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusOK, venue)
}

// Delete handles DELETE /admin/restaurants/{uuid}. Venues with reviews are
// refused with 409.
func (h *VenueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseVenueUUID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.venueService.Delete(r.Context(), id); err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.auditor.LogAdminAction(r.Context(), "venue.delete", id.String(), middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusOK, SuccessResponse{Success: true})
}
