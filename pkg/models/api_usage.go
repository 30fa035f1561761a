package models

import "time"

// APIUsage is one recorded call to an external provider.
type APIUsage struct {
	ID        int64          `json:"id"`
	Service   string         `json:"service"`
	Endpoint  string         `json:"endpoint"`
	Params    map[string]any `json:"params,omitempty"`
	Status    int            `json:"status"`
	Success   bool           `json:"success"`
	LatencyMs int64          `json:"latency_ms"`
	CostUSD   float64        `json:"cost_usd"`
	UserID    *int64         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// UsageTotals aggregates calls and cost over a period.
type UsageTotals struct {
	Calls   int64   `json:"calls"`
	Errors  int64   `json:"errors"`
	CostUSD float64 `json:"cost_usd"`
}

// UsagePeriodBreakdown maps "service/endpoint" to totals.
type UsagePeriodBreakdown struct {
	Since     time.Time              `json:"since"`
	Total     UsageTotals            `json:"total"`
	Endpoints map[string]UsageTotals `json:"endpoints"`
}

// UsageSummary reports provider usage for the day, month and billing cycle.
type UsageSummary struct {
	Today        UsagePeriodBreakdown `json:"today"`
	Month        UsagePeriodBreakdown `json:"month"`
	BillingCycle UsagePeriodBreakdown `json:"billing_cycle"`
}
