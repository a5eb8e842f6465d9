package livesync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
	"goalsync/internal/workpool"
)

// SweepResult summarizes one watchdog pass.
type SweepResult struct {
	SweepID    string          `json:"sweep_id" yaml:"sweep_id"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Candidates int             `json:"candidates" yaml:"candidates"`
	Readmit    int             `json:"readmission_requests" yaml:"readmission_requests"`
	Outcomes   map[Outcome]int `json:"outcomes" yaml:"outcomes"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunSweep re-fetches events that look stale or asked for readmission and
// pushes each through the same locked reconcile path as a tick.
func (s *Service) RunSweep(ctx context.Context) (SweepResult, error) {
	opts := s.Options()
	result := SweepResult{
		SweepID:   uuid.NewString(),
		StartedAt: s.now().UTC(),
		Outcomes:  map[Outcome]int{},
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "livesync.watchdog"), slog.String("sweep_id", result.SweepID))

	staleBefore := s.now().Add(-opts.WatchdogFreshness).UTC().Unix()
	candidates, err := s.repo.ListStaleCandidates(ctx, ports.StaleFilter{
		StaleBefore: staleBefore,
		Limit:       opts.WatchdogBatchSize,
	})
	if err != nil {
		result.Error = err.Error()
		s.finishSweep(ctx, &result, "list_failed")
		return result, errs.Wrap(err, "list stale candidates")
	}
	result.Candidates = len(candidates)

	counts := newTally()
	_, err = workpool.Map(ctx, candidates, opts.WatchdogConcurrency, func(ctx context.Context, record match.EventRecord) (Outcome, error) {
		readmit := record.ReadmissionRequestedAt != nil
		outcome := s.sweepOne(ctx, opts, record.ID, readmit)
		counts.add(outcome)
		return outcome, nil
	})
	for _, record := range candidates {
		if record.ReadmissionRequestedAt != nil {
			result.Readmit++
		}
	}
	result.Outcomes = counts.snapshot()

	outcome := "ok"
	if err != nil {
		result.Error = err.Error()
		outcome = "interrupted"
	}
	s.finishSweep(ctx, &result, outcome)
	return result, errs.Wrap(err, "sweep stale events")
}

func (s *Service) sweepOne(ctx context.Context, opts Options, eventID string, readmit bool) Outcome {
	snapshot, err := s.provider.FetchEventDetail(ctx, eventID)
	if err != nil {
		logCtx := logging.WithAttrs(ctx, slog.String("event_id", eventID))
		if errors.Is(err, ports.ErrEventNotFound) {
			logging.Warn(logCtx, "provider has no detail for stale event", slog.Any("err", errs.Loggable(err)))
			s.metrics.RecordReconcile(ctx, SourceWatchdog, string(OutcomeMissing))
			return OutcomeMissing
		}
		logging.Error(logCtx, "fetch event detail failed", slog.Any("err", errs.Loggable(err)))
		s.metrics.RecordReconcile(ctx, SourceWatchdog, string(OutcomeFailed))
		return OutcomeFailed
	}
	return s.processSnapshot(ctx, opts, snapshot, SourceWatchdog, readmit)
}

func (s *Service) finishSweep(ctx context.Context, result *SweepResult, outcome string) {
	result.FinishedAt = s.now().UTC()
	s.metrics.RecordSweep(ctx, outcome, result.Candidates)
	s.storeSummary(ctx, lastSweepKey, result)

	logging.Info(ctx, "sweep finished",
		slog.String("outcome", outcome),
		slog.Int("candidates", result.Candidates),
		slog.Int("readmission_requests", result.Readmit),
		slog.Int("updated", result.Outcomes[OutcomeUpdated]),
		slog.Int("failed", result.Outcomes[OutcomeFailed]),
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
}
