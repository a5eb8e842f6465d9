package livesync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
)

// Run drives ticks and watchdog sweeps until ctx is done. Intervals are read
// from the current options before every wait so reloads take effect on the
// next cycle.
func (s *Service) Run(ctx context.Context) error {
	ctx = logging.WithAttrs(ctx, slog.String("component", "livesync.run"))
	logging.Info(ctx, "live sync started",
		slog.Duration("tick_interval", s.Options().TickInterval),
		slog.Duration("watchdog_interval", s.Options().WatchdogInterval),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop(groupCtx, func() time.Duration { return s.Options().TickInterval }, func(ctx context.Context) {
			if _, err := s.RunTick(ctx); err != nil && !errors.Is(err, ErrProviderFetch) {
				logging.Error(ctx, "tick failed", slog.Any("err", errs.Loggable(err)))
			}
		})
	})
	group.Go(func() error {
		return loop(groupCtx, func() time.Duration { return s.Options().WatchdogInterval }, func(ctx context.Context) {
			if _, err := s.RunSweep(ctx); err != nil {
				logging.Error(ctx, "sweep failed", slog.Any("err", errs.Loggable(err)))
			}
		})
	})

	err := group.Wait()
	logging.Info(ctx, "live sync stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop runs fn right away and then once per interval until ctx is done. A
// run never overlaps the next one.
func loop(ctx context.Context, interval func() time.Duration, fn func(ctx context.Context)) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		started := time.Now()
		fn(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := interval() - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
