package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
	"goalsync/internal/workpool"
)

// TickResult summarizes one pass over the live batch.
type TickResult struct {
	TickID     string          `json:"tick_id" yaml:"tick_id"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Fetched    int             `json:"fetched" yaml:"fetched"`
	Deferred   int             `json:"deferred" yaml:"deferred"`
	Skipped    int             `json:"skipped_retired" yaml:"skipped_retired"`
	Flagged    int             `json:"flagged_for_readmission" yaml:"flagged_for_readmission"`
	Outcomes   map[Outcome]int `json:"outcomes" yaml:"outcomes"`
	Abandoned  int             `json:"abandoned" yaml:"abandoned"`
	TimedOut   bool            `json:"timed_out" yaml:"timed_out"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunTick fetches the live batch and reconciles every event in it. Per-event
// failures are logged and counted; only a failed fetch is returned.
func (s *Service) RunTick(ctx context.Context) (TickResult, error) {
	opts := s.Options()
	result := TickResult{
		TickID:    uuid.NewString(),
		StartedAt: s.now().UTC(),
		Outcomes:  map[Outcome]int{},
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "livesync.tick"), slog.String("tick_id", result.TickID))

	tickCtx, cancel := context.WithTimeout(ctx, opts.TickTimeout)
	defer cancel()

	snapshots, err := s.provider.FetchLiveSnapshotBatch(tickCtx)
	if err != nil {
		logging.Error(ctx, "fetch live batch failed, store untouched", slog.Any("err", errs.Loggable(err)))
		result.Error = err.Error()
		s.finishTick(ctx, &result, "fetch_failed")
		return result, fmt.Errorf("%w: %w", ErrProviderFetch, err)
	}
	snapshots = dedupeSnapshots(snapshots)
	result.Fetched = len(snapshots)
	if len(snapshots) > opts.BatchSize {
		result.Deferred = len(snapshots) - opts.BatchSize
		logging.Warn(ctx, "live batch over size, deferring overflow", slog.Int("batch_size", opts.BatchSize), slog.Int("deferred", result.Deferred))
		snapshots = snapshots[:opts.BatchSize]
	}

	since := s.now().Add(-opts.RetiredLookback).UTC().Unix()
	if err := s.retired.refresh(tickCtx, func(ctx context.Context) ([]string, error) {
		return s.repo.ListRetiredIDs(ctx, since)
	}); err != nil {
		logging.Warn(ctx, "refresh retired set failed, using previous view", slog.Any("err", errs.Loggable(err)))
	}

	work := make([]match.Snapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		id := strings.TrimSpace(snapshot.EventID)
		if id == "" || !s.retired.has(id) {
			work = append(work, snapshot)
			continue
		}
		result.Skipped++
		if match.IsActive(snapshot.State()) && s.flagRetiredActive(tickCtx, opts, id, snapshot.State()) {
			result.Flagged++
		}
	}

	counts := newTally()
	_, err = workpool.Map(tickCtx, work, opts.Concurrency, func(ctx context.Context, snapshot match.Snapshot) (Outcome, error) {
		outcome := s.processSnapshot(ctx, opts, snapshot, SourceTick, false)
		counts.add(outcome)
		return outcome, nil
	})
	result.Outcomes = counts.snapshot()
	if err != nil {
		result.TimedOut = true
		result.Abandoned = len(work) - counts.total()
		logging.Warn(ctx, "tick stopped before the batch finished", slog.Int("abandoned", result.Abandoned), slog.Any("err", errs.Loggable(err)))
	}

	outcome := "ok"
	if result.TimedOut {
		outcome = "timed_out"
	}
	s.finishTick(ctx, &result, outcome)
	return result, nil
}

// flagRetiredActive records an active report for an event already confirmed
// finished, under the event lock. The watchdog picks the flag up. It reports
// whether the flag was written.
func (s *Service) flagRetiredActive(ctx context.Context, opts Options, id string, reported match.State) bool {
	ctx = logging.WithAttrs(ctx, slog.String("event_id", id))

	lockOutcome, err := WithLock(ctx, s.locker, id, opts.LockTimeout, func(lockCtx context.Context) error {
		return s.repo.FlagReadmission(lockCtx, id, s.now().UTC().Unix())
	})
	switch {
	case lockOutcome == LockSkippedContention:
		logging.Debug(ctx, "event locked elsewhere, readmission flag skipped")
		return false
	case errors.Is(err, ports.ErrEventNotRetired):
		// readmitted since the retired set was loaded
		s.retired.remove(id)
		logging.Debug(ctx, "event no longer retired, readmission flag skipped")
		return false
	case err != nil:
		logging.Error(ctx, "flag readmission failed", slog.Any("err", errs.Loggable(err)))
		return false
	}

	logging.Warn(ctx, "retired event reported active, readmission requested", slog.String("state", string(reported)))
	s.metrics.RecordAnomaly(ctx, "retired_active")
	return true
}

func (s *Service) finishTick(ctx context.Context, result *TickResult, outcome string) {
	result.FinishedAt = s.now().UTC()
	duration := result.FinishedAt.Sub(result.StartedAt)
	s.metrics.RecordTick(ctx, outcome, duration)
	s.storeSummary(ctx, lastTickKey, result)

	logging.Info(ctx, "tick finished",
		slog.String("outcome", outcome),
		slog.Int("fetched", result.Fetched),
		slog.Int("skipped_retired", result.Skipped),
		slog.Int("updated", result.Outcomes[OutcomeUpdated]),
		slog.Int("failed", result.Outcomes[OutcomeFailed]),
		slog.Int("contention", result.Outcomes[OutcomeContention]),
		slog.Duration("duration", duration),
	)
}

func (s *Service) storeSummary(ctx context.Context, key string, summary any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		logging.Warn(ctx, "encode summary failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return
	}
	// the tick context may already be spent
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.cache.Set(storeCtx, key, string(raw), 0); err != nil {
		logging.Warn(ctx, "store summary failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
	}
}

// dedupeSnapshots keeps the last snapshot per event id, in first-seen order.
func dedupeSnapshots(snapshots []match.Snapshot) []match.Snapshot {
	index := make(map[string]int, len(snapshots))
	out := make([]match.Snapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		id := strings.TrimSpace(snapshot.EventID)
		if id == "" {
			out = append(out, snapshot)
			continue
		}
		if at, ok := index[id]; ok {
			out[at] = snapshot
			continue
		}
		index[id] = len(out)
		out = append(out, snapshot)
	}
	return out
}
