package match

import (
	"errors"
	"slices"
	"testing"
)

const kickoff int64 = 1_700_000_000

func liveSnapshot(id string, code int) Snapshot {
	return Snapshot{
		EventID:              id,
		StatusCode:           code,
		ScheduledStartTime:   kickoff,
		FirstPeriodStartTime: int64Ref(kickoff),
	}
}

func TestReconcileSelfHealsMissingMinute(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	now := kickoff + 31*60 + 10

	plan, err := Reconcile(record, liveSnapshot("evt-1", CodeFirstHalf), now, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !plan.Healed {
		t.Fatalf("Reconcile() Healed = false")
	}
	if plan.Next.ElapsedMinute == nil || *plan.Next.ElapsedMinute != 32 {
		t.Fatalf("ElapsedMinute = %s, want 32", formatMinute(plan.Next.ElapsedMinute))
	}
	if plan.Next.ElapsedMinuteText == nil || *plan.Next.ElapsedMinuteText != "32'" {
		t.Fatalf("ElapsedMinuteText = %v, want 32'", plan.Next.ElapsedMinuteText)
	}
	if plan.Next.State != StateFirstHalf {
		t.Fatalf("State = %s", plan.Next.State)
	}
	for _, field := range []Field{FieldState, FieldElapsedMinute, FieldFirstPeriodStartTime} {
		if !slices.Contains(plan.Changed, field) {
			t.Fatalf("Changed = %v, missing %s", plan.Changed, field)
		}
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	record.State = StateFirstHalf
	record.FirstPeriodStartTime = int64Ref(kickoff)
	record.ElapsedMinute = intPtr(20)

	plan, err := Reconcile(record, liveSnapshot("evt-1", CodeFirstHalf), kickoff+29*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if plan.Drift == nil || plan.Drift.Stored != 20 || plan.Drift.Computed != 30 {
		t.Fatalf("Drift = %+v, want stored=20 computed=30", plan.Drift)
	}

	record.ElapsedMinute = intPtr(29)
	plan, err = Reconcile(record, liveSnapshot("evt-1", CodeFirstHalf), kickoff+29*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if plan.Drift != nil {
		t.Fatalf("Drift = %+v, want nil within threshold", plan.Drift)
	}
}

func TestReconcileProviderMinuteIsClamped(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	snapshot := liveSnapshot("evt-1", CodeFirstHalf)
	snapshot.Minute = intPtr(48)
	snapshot.MinuteText = "45+3"

	plan, err := Reconcile(record, snapshot, kickoff+60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if plan.Next.ElapsedMinute == nil || *plan.Next.ElapsedMinute != 45 {
		t.Fatalf("ElapsedMinute = %s, want 45", formatMinute(plan.Next.ElapsedMinute))
	}
	if plan.Healed {
		t.Fatalf("Healed = true for provider-supplied minute")
	}
	if plan.Next.ElapsedMinuteText == nil || *plan.Next.ElapsedMinuteText != "45+3" {
		t.Fatalf("ElapsedMinuteText = %v, want provider text", plan.Next.ElapsedMinuteText)
	}
}

func TestReconcileConfirmsAfterThreshold(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	record.State = StateSecondHalf

	first, err := Reconcile(record, liveSnapshot("evt-1", CodeEnded), kickoff+6000, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if first.Next.TerminalObservedAt == nil || *first.Next.TerminalObservedAt != kickoff+6000 {
		t.Fatalf("TerminalObservedAt = %v, want %d", first.Next.TerminalObservedAt, kickoff+6000)
	}
	if first.Confirmed {
		t.Fatalf("Confirmed = true on first terminal observation")
	}
	if first.Next.ElapsedMinute != nil {
		t.Fatalf("ElapsedMinute = %d, want nil for ended", *first.Next.ElapsedMinute)
	}
	if first.Next.ElapsedMinuteText == nil || *first.Next.ElapsedMinuteText != "FT" {
		t.Fatalf("ElapsedMinuteText = %v, want FT", first.Next.ElapsedMinuteText)
	}

	second, err := Reconcile(first.Next, liveSnapshot("evt-1", CodeEnded), kickoff+6000+20*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !second.Confirmed || !second.Next.Retired() {
		t.Fatalf("Reconcile() Confirmed = %v Retired = %v, want both", second.Confirmed, second.Next.Retired())
	}
	if *second.Next.TerminalObservedAt != kickoff+6000 {
		t.Fatalf("TerminalObservedAt moved to %d", *second.Next.TerminalObservedAt)
	}

	third, err := Reconcile(second.Next, liveSnapshot("evt-1", CodeEnded), kickoff+6000+21*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !third.Retired || third.HasChanges() {
		t.Fatalf("Reconcile() on retired record Retired = %v Changed = %v", third.Retired, third.Changed)
	}
}

func TestReconcileCancelledConfirmsImmediately(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)

	plan, err := Reconcile(record, liveSnapshot("evt-1", CodeCancelled), kickoff, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !plan.Confirmed || plan.Next.TerminalObservedAt == nil {
		t.Fatalf("Reconcile() Confirmed = %v TerminalObservedAt = %v", plan.Confirmed, plan.Next.TerminalObservedAt)
	}
}

func TestReconcileResurrectionClearsTerminalObservation(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	record.State = StateEnded
	record.TerminalObservedAt = int64Ref(kickoff + 6000)

	plan, err := Reconcile(record, liveSnapshot("evt-1", CodeOvertime), kickoff+6000+5*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !plan.Resurrected {
		t.Fatalf("Resurrected = false")
	}
	if plan.Next.TerminalObservedAt != nil {
		t.Fatalf("TerminalObservedAt = %d, want nil", *plan.Next.TerminalObservedAt)
	}
	if plan.Next.State != StateExtraTime || plan.Next.ProviderStatusCode != CodeOvertime {
		t.Fatalf("State = %s code = %d", plan.Next.State, plan.Next.ProviderStatusCode)
	}
	if len(plan.Transitions) != 1 || plan.Transitions[0].Kind != TransitionResurrection {
		t.Fatalf("Transitions = %+v", plan.Transitions)
	}
}

func TestReconcileAnomalyAfterConfirmation(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	record.State = StateEnded
	record.TerminalObservedAt = int64Ref(kickoff + 6000)
	record.ConfirmedFinishedAt = int64Ref(kickoff + 7000)

	now := kickoff + 7200
	plan, err := Reconcile(record, liveSnapshot("evt-1", CodePenalties), now, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !plan.Anomaly || !plan.Retired {
		t.Fatalf("Anomaly = %v Retired = %v", plan.Anomaly, plan.Retired)
	}
	if plan.Next.State != StateEnded {
		t.Fatalf("State = %s, want unchanged", plan.Next.State)
	}
	if !slices.Equal(plan.Changed, []Field{FieldReadmissionRequestedAt}) {
		t.Fatalf("Changed = %v", plan.Changed)
	}

	readmitted, err := Reconcile(plan.Next, liveSnapshot("evt-1", CodePenalties), now+60, DefaultPolicy(), ReconcileOptions{Readmit: true})
	if err != nil {
		t.Fatalf("Reconcile(readmit) error = %v", err)
	}
	if !readmitted.Readmitted || !readmitted.Resurrected {
		t.Fatalf("Readmitted = %v Resurrected = %v", readmitted.Readmitted, readmitted.Resurrected)
	}
	next := readmitted.Next
	if next.ConfirmedFinishedAt != nil || next.ReadmissionRequestedAt != nil || next.TerminalObservedAt != nil {
		t.Fatalf("readmitted record = %+v", next)
	}
	if next.ElapsedMinute != nil {
		t.Fatalf("ElapsedMinute = %d, want nil without extra-time data", *next.ElapsedMinute)
	}
}

func TestReconcileKeepsPeriodStartsWriteOnce(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	record.FirstPeriodStartTime = int64Ref(kickoff)

	snapshot := liveSnapshot("evt-1", CodeSecondHalf)
	snapshot.FirstPeriodStartTime = int64Ref(kickoff + 30)
	snapshot.SecondPeriodStartTime = int64Ref(kickoff - 100)

	plan, err := Reconcile(record, snapshot, kickoff+3700, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if *plan.Next.FirstPeriodStartTime != kickoff {
		t.Fatalf("FirstPeriodStartTime overwritten: %d", *plan.Next.FirstPeriodStartTime)
	}
	if plan.Next.SecondPeriodStartTime != nil {
		t.Fatalf("SecondPeriodStartTime = %d, want nil before first start", *plan.Next.SecondPeriodStartTime)
	}

	snapshot.SecondPeriodStartTime = int64Ref(kickoff + 3600)
	plan, err = Reconcile(plan.Next, snapshot, kickoff+3700, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if plan.Next.SecondPeriodStartTime == nil || *plan.Next.SecondPeriodStartTime != kickoff+3600 {
		t.Fatalf("SecondPeriodStartTime = %v", plan.Next.SecondPeriodStartTime)
	}
	if plan.Next.ElapsedMinute == nil || *plan.Next.ElapsedMinute != 47 {
		t.Fatalf("ElapsedMinute = %s, want 47", formatMinute(plan.Next.ElapsedMinute))
	}
}

func TestReconcileUnchangedSnapshotHasNoChanges(t *testing.T) {
	record := NewEventRecord("evt-1", kickoff)
	snapshot := liveSnapshot("evt-1", CodeHalfTime)

	plan, err := Reconcile(record, snapshot, kickoff+50*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	again, err := Reconcile(plan.Next, snapshot, kickoff+51*60, DefaultPolicy(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if again.HasChanges() || len(again.Transitions) != 0 {
		t.Fatalf("Reconcile() Changed = %v Transitions = %v", again.Changed, again.Transitions)
	}
}

func TestReconcileRejectsMismatchedSnapshot(t *testing.T) {
	_, err := Reconcile(NewEventRecord("evt-1", kickoff), liveSnapshot("evt-2", CodeFirstHalf), kickoff, DefaultPolicy(), ReconcileOptions{})
	if !errors.Is(err, ErrEventMismatch) {
		t.Fatalf("Reconcile() error = %v, want ErrEventMismatch", err)
	}

	_, err = Reconcile(NewEventRecord(" ", kickoff), liveSnapshot(" ", CodeFirstHalf), kickoff, DefaultPolicy(), ReconcileOptions{})
	if !errors.Is(err, ErrEventIDRequired) {
		t.Fatalf("Reconcile() error = %v, want ErrEventIDRequired", err)
	}
}
