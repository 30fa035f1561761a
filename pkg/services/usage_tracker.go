package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/places"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

// costPerCall is the approximate USD charge per successful provider call,
// keyed by "service/endpoint".
var costPerCall = map[string]float64{
	places.ServiceName + "/" + places.EndpointTextSearch: 0.032,
	places.ServiceName + "/" + places.EndpointDetails:    0.017,
	places.ServiceName + "/" + places.EndpointPhoto:      0.007,
}

// BillingCycleStartDay is the day of month a provider billing cycle begins.
const BillingCycleStartDay = 1

const usageWriteTimeout = 5 * time.Second

// CostPerCall returns the configured cost for one call, or 0 when unknown.
func CostPerCall(service, endpoint string) float64 {
	return costPerCall[service+"/"+endpoint]
}

// UsageTracker records provider calls and reports their cost.
type UsageTracker interface {
	places.UsageRecorder
	// Summary returns totals for today, the month, and the billing cycle.
	Summary(ctx context.Context) (*models.UsageSummary, error)
	// Wait blocks until pending writes finish or ctx is done.
	Wait(ctx context.Context) error
}

type usageTracker struct {
	scopes    ScopeProvider
	usageRepo repositories.APIUsageRepository
	logger    *zap.Logger
	now       func() time.Time
	pending   sync.WaitGroup
}

// NewUsageTracker creates a tracker that writes each record on its own
// pooled connection so that a request finishing early cannot lose it.
func NewUsageTracker(scopes ScopeProvider, usageRepo repositories.APIUsageRepository, logger *zap.Logger) UsageTracker {
	return &usageTracker{
		scopes:    scopes,
		usageRepo: usageRepo,
		logger:    logger.Named("usage-tracker"),
		now:       time.Now,
	}
}

var _ UsageTracker = (*usageTracker)(nil)

// Record fills in cost and caller identity, then persists asynchronously.
// Failures are logged only.
func (t *usageTracker) Record(ctx context.Context, usage *models.APIUsage) {
	if usage == nil {
		return
	}

	record := *usage
	if record.Success {
		record.CostUSD = CostPerCall(record.Service, record.Endpoint)
	}
	if record.UserID == nil {
		if id, ok := auth.GetAccountIDFromContext(ctx); ok {
			record.UserID = &id
		}
	}

	detached := context.WithoutCancel(ctx)
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()

		writeCtx, cancel := context.WithTimeout(detached, usageWriteTimeout)
		defer cancel()

		BestEffort(writeCtx, t.logger, "record_usage", func(ctx context.Context) error {
			return withConnection(ctx, t.scopes, func(ctx context.Context) error {
				return t.usageRepo.Insert(ctx, &record)
			})
		})
	}()
}

func (t *usageTracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *usageTracker) Summary(ctx context.Context) (*models.UsageSummary, error) {
	now := t.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var summary models.UsageSummary
	periods := []struct {
		since time.Time
		dst   *models.UsagePeriodBreakdown
	}{
		{today, &summary.Today},
		{month, &summary.Month},
		{BillingCycleStart(now), &summary.BillingCycle},
	}

	for _, p := range periods {
		totals, err := t.usageRepo.TotalsSince(ctx, p.since)
		if err != nil {
			return nil, fmt.Errorf("failed to load usage totals: %w", err)
		}
		*p.dst = breakdown(p.since, totals)
	}
	return &summary, nil
}

// BillingCycleStart returns midnight UTC on the most recent
// BillingCycleStartDay at or before now.
func BillingCycleStart(now time.Time) time.Time {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), BillingCycleStartDay, 0, 0, 0, 0, time.UTC)
	if start.After(now) {
		start = start.AddDate(0, -1, 0)
	}
	return start
}

func breakdown(since time.Time, totals map[string]models.UsageTotals) models.UsagePeriodBreakdown {
	b := models.UsagePeriodBreakdown{
		Since:     since,
		Endpoints: make(map[string]models.UsageTotals, len(totals)),
	}
	for key, t := range totals {
		b.Endpoints[key] = t
		b.Total.Calls += t.Calls
		b.Total.Errors += t.Errors
		b.Total.CostUSD += t.CostUSD
	}
	return b
}
