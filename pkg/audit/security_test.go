package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func TestNewSecurityAuditor(t *testing.T) {
	logger, _ := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	assert.NotNil(t, auditor)
	assert.NotNil(t, auditor.logger)
}

func TestScreenSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		flagged  bool
		wantKind string
	}{
		{name: "plain dish", query: "pizza", flagged: false},
		{name: "restaurant with apostrophe", query: "joe's pizza", flagged: false},
		{name: "address", query: "123 Main St", flagged: false},
		{name: "sql injection", query: "' OR 1=1--", flagged: true, wantKind: "sqli"},
		{name: "union select", query: "1 UNION SELECT password FROM users", flagged: true, wantKind: "sqli"},
		{name: "script tag", query: "<script>alert(1)</script>", flagged: true, wantKind: "xss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, recorded := setupTestLogger(t)
			auditor := NewSecurityAuditor(logger)

			got := auditor.ScreenSearchQuery(context.Background(), tt.query, "10.0.0.1")
			assert.Equal(t, tt.flagged, got)

			if !tt.flagged {
				assert.Equal(t, 0, recorded.Len())
				return
			}
			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, zapcore.ErrorLevel, entry.Level)
			assert.Equal(t, "security_audit", entry.LoggerName)
			assert.Equal(t, tt.wantKind, entry.ContextMap()["kind"])
			assert.Equal(t, "10.0.0.1", entry.ContextMap()["client_ip"])
		})
	}
}

func TestLogInjectionAttempt_IncludesUserFromContext(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	claims := &auth.Claims{Email: "jane@example.com", Role: "user"}
	claims.Subject = "42"
	ctx := context.WithValue(context.Background(), auth.ClaimsKey, claims)

	auditor.LogInjectionAttempt(ctx, InjectionDetails{Field: "q", Value: "' OR 1=1--", Kind: "sqli", Fingerprint: "s&1c"}, "10.0.0.1")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "42", fields["user_id"])
	assert.Equal(t, "critical", fields["severity"])

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.Equal(t, EventInjectionAttempt, event.EventType)
	assert.Equal(t, "42", event.UserID)
}

func TestLogAuthFailure_MasksEmail(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogAuthFailure(context.Background(), "login", "jane@example.com", "invalid_credentials", "10.0.0.2")

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "j***@example.com", fields["email"])
	assert.NotContains(t, fields["event_json"], "jane@example.com")
}

func TestLogAdminAction(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogAdminAction(context.Background(), "delete_chain", "chain:7", "10.0.0.3")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "delete_chain", fields["action"])
	assert.Equal(t, "chain:7", fields["target"])
	assert.Equal(t, "info", fields["severity"])
}
