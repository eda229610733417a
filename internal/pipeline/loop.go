package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// tickLoop calls run once right away and then on every tick. Failed runs are
// logged and retried on the next tick; only cancellation ends the loop.
func tickLoop(ctx context.Context, interval time.Duration, logger *slog.Logger, name string, run func(context.Context) error) error {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		logger.ErrorContext(ctx, "pipeline: "+name+" failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "pipeline: "+name+" loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := run(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "pipeline: "+name+" failed", slog.String("error", err.Error()))
			}
		}
	}
}
