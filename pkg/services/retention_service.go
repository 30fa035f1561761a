package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

// RetentionService permanently removes accounts whose restore window passed.
type RetentionService interface {
	// PurgeDeletedAccounts removes accounts soft-deleted longer than the
	// restore window ago. Returns the number removed.
	PurgeDeletedAccounts(ctx context.Context) (int64, error)

	// RunScheduler starts a background goroutine that purges on the given interval.
	// It runs immediately on startup, then repeats every interval.
	// Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type retentionService struct {
	scopes      ScopeProvider
	accountRepo repositories.AccountRepository
	logger      *zap.Logger
	now         func() time.Time
}

func NewRetentionService(
	scopes ScopeProvider,
	accountRepo repositories.AccountRepository,
	logger *zap.Logger,
) RetentionService {
	return &retentionService{
		scopes:      scopes,
		accountRepo: accountRepo,
		logger:      logger.Named("retention-service"),
		now:         time.Now,
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) PurgeDeletedAccounts(ctx context.Context) (int64, error) {
	scopedCtx, cleanup, err := s.scopes.WithScope(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer cleanup()

	cutoff := s.now().Add(-models.AccountRestoreWindow)
	purged, err := s.accountRepo.PurgeDeletedBefore(scopedCtx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted accounts: %w", err)
	}

	if purged > 0 {
		s.logger.Info("Retention cleanup completed",
			zap.Time("cutoff", cutoff),
			zap.Int64("accounts_purged", purged))
	}
	return purged, nil
}

// RunScheduler starts a background loop that purges expired accounts.
func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval),
			zap.Duration("restore_window", models.AccountRestoreWindow))

		// Run immediately on startup, then at each interval
		s.purge(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				s.purge(ctx)
			}
		}
	}()
}

func (s *retentionService) purge(ctx context.Context) {
	if _, err := s.PurgeDeletedAccounts(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Retention scheduler: purge failed", zap.Error(err))
	}
}
