// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionAttempt is logged when libinjection flags user input.
	EventInjectionAttempt SecurityEventType = "injection_attempt"
	// EventAuthFailure is logged for failed logins and rejected refresh tokens.
	EventAuthFailure SecurityEventType = "auth_failure"
	// EventAdminAction is logged for destructive admin operations.
	EventAdminAction SecurityEventType = "admin_action"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails contains specifics of flagged input.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Kind        string `json:"kind"`                  // sqli or xss
	Fingerprint string `json:"fingerprint,omitempty"` // libinjection fingerprint for pattern analysis
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated
// "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// ScreenSearchQuery runs libinjection over free-text search input and logs
// a critical event when it looks like SQL injection or XSS. The query is
// never rejected: search SQL is parameterised, so this is detection only.
// Returns true when the input was flagged.
func (a *SecurityAuditor) ScreenSearchQuery(ctx context.Context, query, clientIP string) bool {
	if isSQLi, fingerprint := libinjection.IsSQLi(query); isSQLi {
		a.LogInjectionAttempt(ctx, InjectionDetails{
			Field:       "q",
			Value:       logging.TruncateString(query, 200),
			Kind:        "sqli",
			Fingerprint: string(fingerprint),
		}, clientIP)
		return true
	}
	if libinjection.IsXSS(query) {
		a.LogInjectionAttempt(ctx, InjectionDetails{
			Field: "q",
			Value: logging.TruncateString(query, 200),
			Kind:  "xss",
		}, clientIP)
		return true
	}
	return false
}

// LogInjectionAttempt records flagged input at ERROR level with "critical" severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails, clientIP string) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventInjectionAttempt,
		UserID:    userID,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  "critical",
	}

	// Marshaling known types does not fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("Injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("field", details.Field),
		zap.String("kind", details.Kind),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "critical"),
	)
}

// LogAuthFailure records a failed login, restore, or refresh exchange.
// The email is masked before it is written.
func (a *SecurityAuditor) LogAuthFailure(ctx context.Context, operation, email, reason, clientIP string) {
	masked := ""
	if email != "" {
		masked = logging.MaskEmail(email)
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventAuthFailure,
		UserID:    auth.GetUserIDFromContext(ctx),
		ClientIP:  clientIP,
		Details: map[string]string{
			"operation": operation,
			"email":     masked,
			"reason":    reason,
		},
		Severity: "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Authentication failed",
		zap.String("event_json", string(eventJSON)),
		zap.String("operation", operation),
		zap.String("email", masked),
		zap.String("reason", reason),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}

// LogAdminAction records a destructive admin operation for the audit trail.
func (a *SecurityAuditor) LogAdminAction(ctx context.Context, action, target, clientIP string) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventAdminAction,
		UserID:    userID,
		ClientIP:  clientIP,
		Details: map[string]string{
			"action": action,
			"target": target,
		},
		Severity: "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Admin action",
		zap.String("event_json", string(eventJSON)),
		zap.String("action", action),
		zap.String("target", target),
		zap.String("client_ip", clientIP),
		zap.String("user_id", userID),
		zap.String("severity", "info"),
	)
}
