package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// ReviewRequest is the body of review create and update. VisitDate accepts
// a calendar date or an RFC 3339 timestamp.
type ReviewRequest struct {
	Rating         int            `json:"rating"`
	Comment        string         `json:"comment"`
	VisitDate      string         `json:"visit_date"`
	AllergenScores map[string]int `json:"allergen_scores"`
}

// ReviewListResponse wraps the reviews of one venue.
type ReviewListResponse struct {
	Reviews []*models.Review `json:"reviews"`
	Count   int              `json:"count"`
}

// ReviewHandler serves venue reviews.
type ReviewHandler struct {
	reviewService services.ReviewService
	errors        *ErrorWriter
	logger        *zap.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reviewService services.ReviewService, errWriter *ErrorWriter, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
		errors:        errWriter,
		logger:        logger,
	}
}

// RegisterRoutes registers the review routes on the given mux.
func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /restaurants/{uuid}/reviews", scope(h.List))
	mux.HandleFunc("POST /restaurants/{uuid}/reviews", authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("PUT /reviews/{id}", authMiddleware.RequireAuth(scope(h.Update)))
	mux.HandleFunc("DELETE /reviews/{id}", authMiddleware.RequireAuth(scope(h.Delete)))
}

// List handles GET /restaurants/{uuid}/reviews
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	venueID, ok := ParseVenueUUID(w, r, h.logger)
	if !ok {
		return
	}
	reviews, err := h.reviewService.ListByVenue(r.Context(), venueID)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, ReviewListResponse{Reviews: reviews, Count: len(reviews)})
}

// Create handles POST /restaurants/{uuid}/reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	venueID, ok := ParseVenueUUID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	review, err := h.reviewService.Create(r.Context(), venueID, userID, input)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusCreated, review)
}

// Update handles PUT /reviews/{id}
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	review, err := h.reviewService.Update(r.Context(), reviewID, userID, input)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, review)
}

// Delete handles DELETE /reviews/{id}
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	err := h.reviewService.Delete(r.Context(), reviewID, userID, auth.IsAdminContext(r.Context()))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.errors.JSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *ReviewHandler) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		h.errors.Error(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return 0, false
	}
	return userID, true
}

func (h *ReviewHandler) decodeInput(w http.ResponseWriter, r *http.Request) (*services.ReviewInput, bool) {
	var req ReviewRequest
	if !h.errors.decodeJSON(w, r, &req) {
		return nil, false
	}
	input := &services.ReviewInput{
		Rating:         req.Rating,
		Comment:        req.Comment,
		AllergenScores: req.AllergenScores,
	}
	if req.VisitDate != "" {
		visit, err := parseVisitDate(req.VisitDate)
		if err != nil {
			h.errors.Error(w, http.StatusBadRequest, "invalid_input", "visit_date must be YYYY-MM-DD or RFC 3339")
			return nil, false
		}
		input.VisitDate = &visit
	}
	return input, true
}

func parseVisitDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
