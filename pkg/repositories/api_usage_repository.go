package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

// APIUsageRepository defines the interface for provider usage logs.
type APIUsageRepository interface {
	Insert(ctx context.Context, usage *models.APIUsage) error
	// TotalsSince aggregates calls per "service/endpoint" from since onwards.
	TotalsSince(ctx context.Context, since time.Time) (map[string]models.UsageTotals, error)
}

// apiUsageRepository implements APIUsageRepository using PostgreSQL.
type apiUsageRepository struct{}

// NewAPIUsageRepository creates a new usage log repository.
func NewAPIUsageRepository() APIUsageRepository {
	return &apiUsageRepository{}
}

var _ APIUsageRepository = (*apiUsageRepository)(nil)

func (r *apiUsageRepository) Insert(ctx context.Context, usage *models.APIUsage) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	params := usage.Params
	if params == nil {
		params = map[string]any{}
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO api_usage_logs (service, endpoint, params, status, success, latency_ms, cost_usd, user_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		RETURNING id, created_at`,
		usage.Service, usage.Endpoint, params, usage.Status, usage.Success, usage.LatencyMs,
		usage.CostUSD, usage.UserID, usage.SessionID,
	).Scan(&usage.ID, &usage.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}
	return nil
}

func (r *apiUsageRepository) TotalsSince(ctx context.Context, since time.Time) (map[string]models.UsageTotals, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT service, endpoint, COUNT(*), COUNT(*) FILTER (WHERE NOT success), COALESCE(SUM(cost_usd), 0)::float8
		FROM api_usage_logs
		WHERE created_at >= $1
		GROUP BY service, endpoint`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]models.UsageTotals)
	for rows.Next() {
		var service, endpoint string
		var t models.UsageTotals
		if err := rows.Scan(&service, &endpoint, &t.Calls, &t.Errors, &t.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan usage totals: %w", err)
		}
		totals[service+"/"+endpoint] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage totals: %w", err)
	}

	return totals, nil
}
