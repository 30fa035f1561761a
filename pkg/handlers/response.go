package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// SuccessResponse is returned by mutations that have no other payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// errorMapping is the HTTP form of a classified service error.
type errorMapping struct {
	sentinel error
	status   int
	code     string
	message  string // used when the error carries no detail of its own
}

var errorMappings = []errorMapping{
	{apperrors.ErrQueryTooShort, http.StatusBadRequest, "query_too_short", "Search query must be at least 2 characters"},
	{apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input", "Invalid input"},
	{apperrors.ErrProviderFailed, http.StatusBadRequest, "provider_error", "Google Places request failed"},
	{apperrors.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{apperrors.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Invalid or expired token"},
	{apperrors.ErrAccountDeleted, http.StatusForbidden, "account_deleted", "This account has been deleted and can be restored"},
	{apperrors.ErrRestoreWindowExpired, http.StatusForbidden, "restore_window_expired", "The restore window for this account has expired"},
	{apperrors.ErrForbidden, http.StatusForbidden, "forbidden", "You are not allowed to do that"},
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", "Not found"},
	{apperrors.ErrHasDependents, http.StatusConflict, "has_dependents", "Record is still referenced"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict", "Already exists"},
	{apperrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable", "Google Places is not configured"},
	{apperrors.ErrDatabaseUnavailable, http.StatusServiceUnavailable, "database_unavailable", "Database connection error"},
}

// ErrorWriter maps service errors onto HTTP error responses.
type ErrorWriter struct {
	logger        *zap.Logger
	exposeDetails bool
}

// NewErrorWriter creates an ErrorWriter. exposeDetails adds the raw error
// text to 500 responses and must be false in production.
func NewErrorWriter(logger *zap.Logger, exposeDetails bool) *ErrorWriter {
	return &ErrorWriter{logger: logger.Named("errors"), exposeDetails: exposeDetails}
}

// Write classifies err and writes the matching response. Unclassified
// errors become 500 with an error_id that is also logged.
func (e *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	if nonDining, ok := apperrors.AsNonDiningVenue(err); ok {
		e.write(w, http.StatusBadRequest, map[string]any{
			"error":            "not_a_restaurant",
			"message":          nonDining.Name + " is not a restaurant",
			"excluded_reasons": nonDining.Reasons,
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			e.write(w, m.status, map[string]any{
				"error":   m.code,
				"message": detailOf(err, m.sentinel, m.message),
			})
			return
		}
	}

	errorID := uuid.NewString()
	e.logger.Error("Request failed",
		zap.String("error_id", errorID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))

	body := map[string]any{
		"error":    "internal_error",
		"message":  "An unexpected error occurred",
		"error_id": errorID,
	}
	if e.exposeDetails {
		body["details"] = err.Error()
	}
	e.write(w, http.StatusInternalServerError, body)
}

// Error writes a response for a failure detected in the handler itself.
func (e *ErrorWriter) Error(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		e.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// JSON writes a success payload, logging encoding failures.
func (e *ErrorWriter) JSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		e.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (e *ErrorWriter) write(w http.ResponseWriter, status int, body map[string]any) {
	if err := WriteJSON(w, status, body); err != nil {
		e.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// detailOf returns the text a service added when wrapping sentinel, e.g.
// "name is required" from "invalid input: name is required".
func detailOf(err, sentinel error, fallback string) string {
	prefix := sentinel.Error() + ": "
	msg := err.Error()
	if i := strings.Index(msg, prefix); i >= 0 {
		if detail := msg[i+len(prefix):]; detail != "" {
			return detail
		}
	}
	return fallback
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func (e *ErrorWriter) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		e.logger.Debug("Invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		e.Error(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// decodeBody decodes an optional bounded JSON body without writing a response.
func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}
