package livesync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

// Outcome is what happened to one event during a tick or sweep.
type Outcome string

const (
	OutcomeUpdated    Outcome = "updated"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeContention Outcome = "skipped_contention"
	OutcomeInvalidKey Outcome = "skipped_invalid_key"
	OutcomeRetired    Outcome = "retired"
	OutcomeAnomaly    Outcome = "anomaly"
	OutcomeMissing    Outcome = "missing"
	OutcomeFailed     Outcome = "failed"
)

// tally counts outcomes across concurrent workers.
type tally struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func newTally() *tally {
	return &tally{counts: make(map[Outcome]int)}
}

func (t *tally) add(outcome Outcome) {
	t.mu.Lock()
	t.counts[outcome]++
	t.mu.Unlock()
}

func (t *tally) snapshot() map[Outcome]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Outcome]int, len(t.counts))
	for outcome, count := range t.counts {
		out[outcome] = count
	}
	return out
}

func (t *tally) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, count := range t.counts {
		total += count
	}
	return total
}

// processSnapshot is the per-event path shared by ticks and sweeps: lock,
// reconcile with retry, publish, log.
func (s *Service) processSnapshot(ctx context.Context, opts Options, snapshot match.Snapshot, source string, readmit bool) Outcome {
	ctx = logging.WithAttrs(ctx, slog.String("event_id", snapshot.EventID))

	var plan match.Plan
	lockOutcome, err := WithLock(ctx, s.locker, snapshot.EventID, opts.LockTimeout, func(lockCtx context.Context) error {
		var reconcileErr error
		plan, reconcileErr = s.reconcileWithRetry(lockCtx, opts, snapshot, match.ReconcileOptions{Readmit: readmit, Source: source})
		if reconcileErr != nil {
			return reconcileErr
		}
		s.publish(lockCtx, plan)
		return nil
	})

	outcome := OutcomeFailed
	switch {
	case lockOutcome == LockSkippedInvalidKey:
		outcome = OutcomeInvalidKey
	case lockOutcome == LockSkippedContention:
		logging.Debug(ctx, "event locked elsewhere, skipping")
		outcome = OutcomeContention
	case err != nil:
		logging.Error(ctx, "reconcile event failed", slog.String("source", source), slog.Any("err", errs.Loggable(err)))
	default:
		outcome = s.observePlan(ctx, plan, source)
	}

	s.metrics.RecordReconcile(ctx, source, string(outcome))
	return outcome
}

func (s *Service) observePlan(ctx context.Context, plan match.Plan, source string) Outcome {
	id := plan.Next.ID
	if plan.Retired {
		s.retired.add(id)
		if plan.Anomaly {
			logging.Warn(ctx, "retired event reported active, readmission requested",
				slog.String("source", source),
				slog.String("state", string(plan.Next.State)),
			)
			s.metrics.RecordAnomaly(ctx, "retired_active")
			return OutcomeAnomaly
		}
		return OutcomeRetired
	}

	if plan.Readmitted {
		s.retired.remove(id)
		logging.Info(ctx, "event readmitted", slog.String("state", string(plan.Next.State)))
	}
	if plan.Healed {
		logging.Info(ctx, "elapsed minute derived from period start", slog.Any("minute", plan.Next.ElapsedMinute))
	}
	if plan.Drift != nil {
		logging.Warn(ctx, "elapsed minute drift",
			slog.Int("stored", plan.Drift.Stored),
			slog.Int("computed", plan.Drift.Computed),
		)
	}
	if plan.Resurrected {
		logging.Info(ctx, "ended event resumed play", slog.String("state", string(plan.Next.State)))
	}
	if plan.Confirmed {
		s.retired.add(id)
		logging.Info(ctx, "event confirmed finished", slog.String("state", string(plan.Next.State)))
	}

	if plan.HasChanges() {
		return OutcomeUpdated
	}
	return OutcomeUnchanged
}

func (s *Service) reconcileWithRetry(ctx context.Context, opts Options, snapshot match.Snapshot, options match.ReconcileOptions) (match.Plan, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.RetryBaseDelay
	policy.MaxInterval = opts.RetryMaxDelay

	attempt := 0
	return backoff.Retry(ctx, func() (match.Plan, error) {
		attempt++
		plan, err := s.reconcileOne(ctx, opts, snapshot, options)
		if err == nil {
			return plan, nil
		}
		if !retryable(err) {
			return match.Plan{}, backoff.Permanent(err)
		}
		return match.Plan{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(opts.MaxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logging.Warn(ctx, "reconcile attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("err", errs.Loggable(err)),
			)
		}),
	)
}

// retryable reports whether err may clear up on its own. Domain rejections,
// permanent marks and cancellations do not.
func retryable(err error) bool {
	switch {
	case errs.IsPermanent(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, match.ErrEventIDRequired), errors.Is(err, match.ErrEventMismatch), errors.Is(err, match.ErrInvalidState):
		return false
	default:
		return true
	}
}

// reconcileOne loads or creates the record, plans the merge and persists the
// changed fields and transitions in one unit of work.
func (s *Service) reconcileOne(ctx context.Context, opts Options, snapshot match.Snapshot, options match.ReconcileOptions) (match.Plan, error) {
	id := strings.TrimSpace(snapshot.EventID)
	if id == "" {
		return match.Plan{}, match.ErrEventIDRequired
	}
	snapshot.EventID = id
	now := s.now().UTC().Unix()

	var plan match.Plan
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		record, err := s.repo.GetEvent(txCtx, id)
		if errors.Is(err, ports.ErrEventNotFound) {
			record, err = s.repo.CreateEvent(txCtx, match.NewEventRecord(id, snapshot.ScheduledStartTime))
		}
		if err != nil {
			return err
		}

		plan, err = match.Reconcile(record, snapshot, now, opts.policy(), options)
		if err != nil {
			return errs.Permanent(err)
		}

		if plan.Retired {
			if !plan.HasChanges() {
				return nil
			}
			return s.persist(txCtx, plan)
		}
		plan.Next.LastReconciledAt = &now
		return s.persist(txCtx, plan)
	})
	if err != nil {
		return match.Plan{}, errs.Wrapf(err, "reconcile event %q", id)
	}
	return plan, nil
}

func (s *Service) persist(ctx context.Context, plan match.Plan) error {
	if err := s.repo.UpdateEvent(ctx, plan.Next, plan.Changed); err != nil {
		return err
	}
	for _, transition := range plan.Transitions {
		if err := s.repo.AppendTransition(ctx, transition); err != nil {
			return err
		}
	}
	return nil
}

// publish forwards transitions downstream. Failures are logged only.
func (s *Service) publish(ctx context.Context, plan match.Plan) {
	if s.publisher == nil {
		return
	}
	for _, transition := range plan.Transitions {
		if err := s.publisher.PublishTransition(ctx, transition, plan.Next); err != nil {
			logging.Warn(ctx, "publish transition failed",
				slog.String("kind", string(transition.Kind)),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}
}
