package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestParseVenueUUID(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		pathValue  string
		wantOK     bool
		wantStatus int
		wantError  string
	}{
		{
			name:      "valid UUID",
			pathValue: "550e8400-e29b-41d4-a716-446655440000",
			wantOK:    true,
		},
		{
			name:       "numeric id",
			pathValue:  "42",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_venue_id",
		},
		{
			name:       "empty",
			pathValue:  "",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_venue_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("uuid", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := ParseVenueUUID(rec, req, logger)

			if ok != tt.wantOK {
				t.Errorf("ParseVenueUUID() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK {
				if id.String() != tt.pathValue {
					t.Errorf("ParseVenueUUID() id = %v, want %v", id, tt.pathValue)
				}
				return
			}
			if id != uuid.Nil {
				t.Errorf("ParseVenueUUID() id = %v, want uuid.Nil", id)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("ParseVenueUUID() status = %v, want %v", rec.Code, tt.wantStatus)
			}

			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("ParseVenueUUID() error = %v, want %v", resp["error"], tt.wantError)
			}
		})
	}
}

func TestParseInt64IDs(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		parse     func(http.ResponseWriter, *http.Request, *zap.Logger) (int64, bool)
		pathValue string
		wantID    int64
		wantError string
	}{
		{"chain ok", ParseChainID, "12", 12, ""},
		{"chain zero", ParseChainID, "0", 0, "invalid_chain_id"},
		{"review negative", ParseReviewID, "-3", 0, "invalid_review_id"},
		{"user text", ParseUserID, "abc", 0, "invalid_user_id"},
		{"user ok", ParseUserID, "9", 9, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("id", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := tt.parse(rec, req, logger)

			if id != tt.wantID {
				t.Errorf("id = %d, want %d", id, tt.wantID)
			}
			if ok != (tt.wantError == "") {
				t.Errorf("ok = %v, want %v", ok, tt.wantError == "")
			}
			if tt.wantError == "" {
				return
			}

			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("error = %v, want %v", resp["error"], tt.wantError)
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/restaurants?limit=25&offset=-1&bad=x", nil)

	if n, ok := queryInt(req, "limit", 50); !ok || n != 25 {
		t.Errorf("limit = %d, %v; want 25, true", n, ok)
	}
	if n, ok := queryInt(req, "missing", 50); !ok || n != 50 {
		t.Errorf("missing = %d, %v; want 50, true", n, ok)
	}
	if _, ok := queryInt(req, "offset", 0); ok {
		t.Error("negative offset accepted")
	}
	if _, ok := queryInt(req, "bad", 0); ok {
		t.Error("non-numeric value accepted")
	}
}
