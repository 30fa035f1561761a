package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/middleware"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// ImportRequest is the body of POST /search/import.
type ImportRequest struct {
	PlaceID string `json:"place_id"`
}

// ImportResponse reports the venue backing an imported place.
type ImportResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	PlaceID  string        `json:"place_id"`
	Imported bool          `json:"imported"`
	Place    *models.Venue `json:"place"`
}

// SearchHandler serves hybrid search and place import.
type SearchHandler struct {
	searchService services.SearchService
	importService services.ImportService
	errors        *ErrorWriter
	logger        *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(
	searchService services.SearchService,
	importService services.ImportService,
	errWriter *ErrorWriter,
	logger *zap.Logger,
) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		importService: importService,
		errors:        errWriter,
		logger:        logger,
	}
}

// RegisterRoutes registers the search routes. Import is open to anonymous
// callers; when a token is present the importer is recorded.
//
// These routes take no request scope: the services acquire a connection
// around each storage call and release it before calling the provider.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("POST /search/import", authMiddleware.OptionalAuth(h.Import))
}

// Search handles GET /search?q=...&google_fallback=true
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.searchService.Search(r.Context(), services.SearchRequest{
		Query:         q.Get("q"),
		ForceFallback: q.Get("google_fallback") == "true",
		ClientIP:      middleware.ClientIP(r),
	})
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, resp)
}

// Import handles POST /search/import
func (h *SearchHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.errors.decodeJSON(w, r, &req) {
		return
	}
	req.PlaceID = strings.TrimSpace(req.PlaceID)
	if req.PlaceID == "" {
		h.errors.Error(w, http.StatusBadRequest, "invalid_input", "place_id is required")
		return
	}

	result, err := h.importService.Import(r.Context(), req.PlaceID)
	if err != nil {
		h.logger.Info("Import rejected",
			zap.String("place_id", req.PlaceID),
			zap.Error(err))
		h.errors.Write(w, r, err)
		return
	}

	message := "Restaurant already exists"
	if result.Imported {
		message = "Restaurant imported"
	}
	h.errors.JSON(w, http.StatusOK, ImportResponse{
		Success:  true,
		Message:  message,
		PlaceID:  result.PlaceID,
		Imported: result.Imported,
		Place:    result.Venue,
	})
}
