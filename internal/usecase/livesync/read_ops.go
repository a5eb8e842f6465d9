package livesync

import (
	"context"
	"encoding/json"
	"strings"

	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

// EventDetail is a stored record plus its recent lifecycle log.
type EventDetail struct {
	Record      match.EventRecord  `json:"record" yaml:"record"`
	Transitions []match.Transition `json:"transitions" yaml:"transitions"`
}

type ListInput struct {
	States         []match.State
	IncludeRetired bool
	Limit          int
}

// StatusReport carries the summaries of the latest tick and sweep.
type StatusReport struct {
	LastTick     *TickResult  `json:"last_tick,omitempty" yaml:"last_tick,omitempty"`
	LastSweep    *SweepResult `json:"last_sweep,omitempty" yaml:"last_sweep,omitempty"`
	RetiredKnown int          `json:"retired_known" yaml:"retired_known"`
}

func (s *Service) GetEvent(ctx context.Context, eventID string, transitionLimit int) (EventDetail, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return EventDetail{}, match.ErrEventIDRequired
	}
	record, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return EventDetail{}, errs.Wrapf(err, "get event %q", id)
	}
	transitions, err := s.repo.ListTransitions(ctx, id, transitionLimit)
	if err != nil {
		return EventDetail{}, errs.Wrapf(err, "list transitions %q", id)
	}
	return EventDetail{Record: record, Transitions: transitions}, nil
}

func (s *Service) ListEvents(ctx context.Context, input ListInput) ([]match.EventRecord, error) {
	records, err := s.repo.ListEvents(ctx, ports.EventFilter{
		States:         input.States,
		IncludeRetired: input.IncludeRetired,
		Limit:          input.Limit,
	})
	if err != nil {
		return nil, errs.Wrap(err, "list events")
	}
	return records, nil
}

// ListLive returns unconfirmed events in an active state.
func (s *Service) ListLive(ctx context.Context, limit int) ([]match.EventRecord, error) {
	active := make([]match.State, 0, 4)
	for _, state := range match.States() {
		if match.IsActive(state) {
			active = append(active, state)
		}
	}
	return s.ListEvents(ctx, ListInput{States: active, Limit: limit})
}

func (s *Service) Status(ctx context.Context) (StatusReport, error) {
	report := StatusReport{RetiredKnown: s.retired.size()}
	if s.cache == nil {
		return report, nil
	}

	var tick TickResult
	found, err := s.loadSummary(ctx, lastTickKey, &tick)
	if err != nil {
		return StatusReport{}, err
	}
	if found {
		report.LastTick = &tick
	}

	var sweep SweepResult
	found, err = s.loadSummary(ctx, lastSweepKey, &sweep)
	if err != nil {
		return StatusReport{}, err
	}
	if found {
		report.LastSweep = &sweep
	}
	return report, nil
}

func (s *Service) loadSummary(ctx context.Context, key string, out any) (bool, error) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return false, errs.Wrapf(err, "read %s", key)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, errs.Wrapf(err, "decode %s", key)
	}
	return true, nil
}
