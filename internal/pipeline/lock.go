package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

// runLocked runs fn while holding the named distributed lock so replicas do
// not repeat the same work. A lock held elsewhere skips the run silently.
// A nil LockManager runs fn unguarded.
func runLocked(ctx context.Context, locks domain.LockManager, key string, ttl time.Duration, logger *slog.Logger, fn func(context.Context) error) error {
	if locks == nil {
		return fn(ctx)
	}

	unlock, err := locks.Acquire(ctx, key, ttl)
	if errors.Is(err, domain.ErrLockHeld) {
		logger.DebugContext(ctx, "pipeline: run skipped, lock held elsewhere", slog.String("lock", key))
		return nil
	}
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}
