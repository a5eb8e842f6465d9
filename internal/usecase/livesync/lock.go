package livesync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

type LockOutcome string

const (
	LockAcquired          LockOutcome = "acquired"
	LockSkippedInvalidKey LockOutcome = "skipped_invalid_key"
	LockSkippedContention LockOutcome = "skipped_contention"
	LockFailed            LockOutcome = "failed"
)

// WithLock runs fn while holding the per-event lock for eventID. A blank id
// and a lock held elsewhere are both skips, not errors. fn gets a context
// bounded by timeout when timeout is positive.
func WithLock(ctx context.Context, locker ports.KeyedLocker, eventID string, timeout time.Duration, fn func(ctx context.Context) error) (LockOutcome, error) {
	key := strings.TrimSpace(eventID)
	if key == "" {
		logging.Debug(ctx, "skip lock for blank event id", slog.String("event_id", eventID))
		return LockSkippedInvalidKey, nil
	}

	unlock, acquired, err := locker.TryLock(ctx, key)
	if err != nil {
		return LockFailed, errs.Wrapf(err, "lock event %q", key)
	}
	if !acquired {
		return LockSkippedContention, nil
	}
	defer unlock()

	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return LockAcquired, fn(lockCtx)
}
