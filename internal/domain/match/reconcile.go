package match

import (
	"fmt"
	"strings"
)

// Field names a mutable column of EventRecord.
type Field string

const (
	FieldState                  Field = "state"
	FieldProviderStatusCode     Field = "provider_status_code"
	FieldScheduledStartTime     Field = "scheduled_start_time"
	FieldFirstPeriodStartTime   Field = "first_period_start_time"
	FieldSecondPeriodStartTime  Field = "second_period_start_time"
	FieldElapsedMinute          Field = "elapsed_minute"
	FieldElapsedMinuteText      Field = "elapsed_minute_text"
	FieldTerminalObservedAt     Field = "terminal_observed_at"
	FieldConfirmedFinishedAt    Field = "confirmed_finished_at"
	FieldReadmissionRequestedAt Field = "readmission_requested_at"
	FieldLastProviderUpdateTime Field = "last_provider_update_time"
	FieldScore                  Field = "score"
)

type ReconcileOptions struct {
	// Readmit lets a confirmed event back into the working set.
	Readmit bool
	Source  string
}

// Drift is an advisory mismatch between a stored and a derived minute.
type Drift struct {
	Stored   int
	Computed int
}

// Plan is the outcome of merging one snapshot into a record. Next is the
// record as it should be persisted; Changed lists the fields that differ.
type Plan struct {
	Next        EventRecord
	Changed     []Field
	Transitions []Transition
	Drift       *Drift

	Healed      bool
	Resurrected bool
	Confirmed   bool
	Readmitted  bool
	// Retired is set when the record was already confirmed and the snapshot
	// was ignored.
	Retired bool
	// Anomaly marks an active snapshot for a confirmed event.
	Anomaly bool
}

func (p Plan) HasChanges() bool {
	return len(p.Changed) > 0
}

// Reconcile merges a provider snapshot into the persisted record. It is pure;
// now is epoch seconds.
func Reconcile(record EventRecord, snapshot Snapshot, now int64, policy Policy, options ReconcileOptions) (Plan, error) {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return Plan{}, ErrEventIDRequired
	}
	if strings.TrimSpace(snapshot.EventID) != id {
		return Plan{}, fmt.Errorf("%w: record=%q snapshot=%q", ErrEventMismatch, id, snapshot.EventID)
	}

	policy = policy.normalized()
	next := record
	plan := Plan{}
	reported := snapshot.State()

	if record.Retired() {
		if !options.Readmit {
			plan.Retired = true
			if IsActive(reported) {
				plan.Anomaly = true
				if next.ReadmissionRequestedAt == nil {
					next.ReadmissionRequestedAt = int64Ptr(now)
					plan.Transitions = append(plan.Transitions, Transition{
						EventID: id, From: record.State, To: reported,
						Kind: TransitionAnomaly, Source: options.Source, ObservedAt: now,
					})
				}
			}
			plan.Next = next
			plan.Changed = diffRecords(record, next)
			return plan, nil
		}

		next.ConfirmedFinishedAt = nil
		plan.Readmitted = true
		plan.Transitions = append(plan.Transitions, Transition{
			EventID: id, From: record.State, To: reported,
			Kind: TransitionReadmitted, Source: options.Source, ObservedAt: now,
		})
	}
	if options.Readmit {
		next.ReadmissionRequestedAt = nil
	}

	applyState(&next, &plan, record.State, reported, snapshot.StatusCode, now, options.Source)
	applySchedule(&next, snapshot)
	applyMinute(&next, &plan, record, snapshot, now, policy)

	if snapshot.Score != record.Score {
		next.Score = snapshot.Score
	}
	if snapshot.ProviderUpdatedAt != nil {
		next.LastProviderUpdateTime = int64Ptr(*snapshot.ProviderUpdatedAt)
	}

	if next.ConfirmedFinishedAt == nil && policy.IsConfirmedFinished(next.State, next.TerminalObservedAt, now) {
		next.ConfirmedFinishedAt = int64Ptr(now)
		plan.Confirmed = true
		plan.Transitions = append(plan.Transitions, Transition{
			EventID: id, From: next.State, To: next.State,
			Kind: TransitionConfirmed, Source: options.Source, ObservedAt: now,
		})
	}

	plan.Next = next
	plan.Changed = diffRecords(record, next)
	return plan, nil
}

func applyState(next *EventRecord, plan *Plan, previous State, reported State, code int, now int64, source string) {
	next.ProviderStatusCode = code

	if kind := ClassifyTransition(previous, reported); kind != TransitionNone {
		next.State = reported
		plan.Transitions = append(plan.Transitions, Transition{
			EventID: next.ID, From: previous, To: reported,
			Kind: kind, Source: source, ObservedAt: now,
		})
		if kind == TransitionResurrection {
			plan.Resurrected = true
		}
	}

	switch {
	case IsProvisionallyTerminal(next.State):
		if next.TerminalObservedAt == nil {
			next.TerminalObservedAt = int64Ptr(now)
		}
	default:
		next.TerminalObservedAt = nil
	}
}

// applySchedule fills write-once fields. A second-period kickoff earlier than
// the first is ignored.
func applySchedule(next *EventRecord, snapshot Snapshot) {
	if next.ScheduledStartTime == 0 && snapshot.ScheduledStartTime > 0 {
		next.ScheduledStartTime = snapshot.ScheduledStartTime
	}
	if next.FirstPeriodStartTime == nil && positive(snapshot.FirstPeriodStartTime) {
		next.FirstPeriodStartTime = int64Ptr(*snapshot.FirstPeriodStartTime)
	}
	if next.SecondPeriodStartTime == nil && positive(snapshot.SecondPeriodStartTime) {
		second := *snapshot.SecondPeriodStartTime
		if next.FirstPeriodStartTime == nil || *next.FirstPeriodStartTime <= second {
			next.SecondPeriodStartTime = int64Ptr(second)
		}
	}
}

func applyMinute(next *EventRecord, plan *Plan, previous EventRecord, snapshot Snapshot, now int64, policy Policy) {
	state := next.State

	var minute *int
	overflow := false
	switch {
	case snapshot.Minute != nil:
		minute = ClampMinute(state, *snapshot.Minute)
	default:
		minute = ParseDisplayedMinute(snapshot.MinuteText, state)
		if minute != nil {
			minute = ClampMinute(state, *minute)
		}
	}

	if minute == nil {
		minute, overflow = elapsedMinute(state, now, next.FirstPeriodStartTime, next.SecondPeriodStartTime)
		if minute != nil && (state == StateFirstHalf || state == StateSecondHalf) {
			plan.Healed = true
			if previous.ElapsedMinute != nil {
				delta := *minute - *previous.ElapsedMinute
				if delta < 0 {
					delta = -delta
				}
				if delta > policy.DriftThreshold {
					plan.Drift = &Drift{Stored: *previous.ElapsedMinute, Computed: *minute}
				}
			}
		}
	}
	next.ElapsedMinute = minute

	text := strings.TrimSpace(snapshot.MinuteText)
	if text == "" || IsProvisionallyTerminal(state) {
		text = FormatMinuteText(state, minute, overflow)
	}
	if text == "" {
		next.ElapsedMinuteText = nil
	} else {
		next.ElapsedMinuteText = &text
	}
}

func diffRecords(prev EventRecord, next EventRecord) []Field {
	changed := make([]Field, 0, 4)
	add := func(field Field, differs bool) {
		if differs {
			changed = append(changed, field)
		}
	}

	add(FieldState, prev.State != next.State)
	add(FieldProviderStatusCode, prev.ProviderStatusCode != next.ProviderStatusCode)
	add(FieldScheduledStartTime, prev.ScheduledStartTime != next.ScheduledStartTime)
	add(FieldFirstPeriodStartTime, !equalInt64(prev.FirstPeriodStartTime, next.FirstPeriodStartTime))
	add(FieldSecondPeriodStartTime, !equalInt64(prev.SecondPeriodStartTime, next.SecondPeriodStartTime))
	add(FieldElapsedMinute, !equalInt(prev.ElapsedMinute, next.ElapsedMinute))
	add(FieldElapsedMinuteText, !equalString(prev.ElapsedMinuteText, next.ElapsedMinuteText))
	add(FieldTerminalObservedAt, !equalInt64(prev.TerminalObservedAt, next.TerminalObservedAt))
	add(FieldConfirmedFinishedAt, !equalInt64(prev.ConfirmedFinishedAt, next.ConfirmedFinishedAt))
	add(FieldReadmissionRequestedAt, !equalInt64(prev.ReadmissionRequestedAt, next.ReadmissionRequestedAt))
	add(FieldLastProviderUpdateTime, !equalInt64(prev.LastProviderUpdateTime, next.LastProviderUpdateTime))
	add(FieldScore, prev.Score != next.Score)

	return changed
}

func positive(value *int64) bool {
	return value != nil && *value > 0
}

func int64Ptr(value int64) *int64 {
	return &value
}

func equalInt64(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt(a *int, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalString(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
