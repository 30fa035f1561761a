package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BestEffort runs a side effect whose failure must not reach the caller.
// Errors and panics are logged at WARN under the operation name and
// swallowed. It reports whether fn succeeded.
func BestEffort(ctx context.Context, logger *zap.Logger, operation string, fn func(context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Best-effort operation panicked",
				zap.String("operation", operation),
				zap.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		logger.Warn("Best-effort operation failed",
			zap.String("operation", operation),
			zap.Error(err))
		return false
	}
	return true
}
