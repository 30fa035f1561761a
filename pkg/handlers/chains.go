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

// ChainListResponse wraps the chain list.
type ChainListResponse struct {
	Chains []*models.Chain `json:"chains"`
}

// DeleteChainResponse reports how many venues lost their chain.
type DeleteChainResponse struct {
	Success         bool  `json:"success"`
	UnassignedCount int64 `json:"unassignedCount"`
}

// ChainHandler serves restaurant chains.
type ChainHandler struct {
	chainService services.ChainService
	auditor      *audit.SecurityAuditor
	errors       *ErrorWriter
	logger       *zap.Logger
}

// NewChainHandler creates a new chain handler.
func NewChainHandler(chainService services.ChainService, auditor *audit.SecurityAuditor, errWriter *ErrorWriter, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{
		chainService: chainService,
		auditor:      auditor,
		errors:       errWriter,
		logger:       logger,
	}
}

// RegisterRoutes registers the chain routes on the given mux.
func (h *ChainHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /chains", scope(h.List))
	mux.HandleFunc("GET /admin/chains", authMiddleware.RequireAdmin(scope(h.List)))
	mux.HandleFunc("POST /admin/chains", authMiddleware.RequireAdmin(scope(h.Create)))
	mux.HandleFunc("PUT /admin/chains/{id}", authMiddleware.RequireAdmin(scope(h.Update)))
	mux.HandleFunc("DELETE /admin/chains/{id}", authMiddleware.RequireAdmin(scope(h.Delete)))
}

// List handles GET /chains
func (h *ChainHandler) List(w http.ResponseWriter, r *http.Request) {
	chains, err := h.chainService.List(r.Context())
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, ChainListResponse{Chains: chains})
}

// Create handles POST /admin/chains
func (h *ChainHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.ChainInput
	if !h.errors.decodeJSON(w, r, &input) {
		return
	}
	chain, err := h.chainService.Create(r.Context(), &input)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.auditor.LogAdminAction(r.Context(), "chain.create", chain.Slug, middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusCreated, chain)
}

// Update handles PUT /admin/chains/{id}
func (h *ChainHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseChainID(w, r, h.logger)
	if !ok {
		return
	}
	var input services.ChainInput
	if !h.errors.decodeJSON(w, r, &input) {
		return
	}
	chain, err := h.chainService.Update(r.Context(), id, &input)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.auditor.LogAdminAction(r.Context(), "chain.update", chain.Slug, middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusOK, chain)
}

// Delete handles DELETE /admin/chains/{id}
func (h *ChainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseChainID(w, r, h.logger)
	if !ok {
		return
	}
	unassigned, err := h.chainService.Delete(r.Context(), id)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.auditor.LogAdminAction(r.Context(), "chain.delete", strconv.FormatInt(id, 10), middleware.ClientIP(r))
	h.errors.JSON(w, http.StatusOK, DeleteChainResponse{Success: true, UnassignedCount: unassigned})
}
