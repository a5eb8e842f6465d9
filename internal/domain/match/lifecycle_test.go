package match

import (
	"errors"
	"testing"
	"time"
)

func TestIsConfirmedFinished(t *testing.T) {
	const observed int64 = 1_700_000_000

	testCases := []struct {
		name     string
		state    State
		observed *int64
		now      int64
		want     bool
	}{
		{name: "ended just below threshold", state: StateEnded, observed: int64Ref(observed), now: observed + 899, want: false},
		{name: "ended at threshold", state: StateEnded, observed: int64Ref(observed), now: observed + 900, want: true},
		{name: "ended without observation", state: StateEnded, now: observed + 3600, want: false},
		{name: "cancelled always", state: StateCancelled, now: observed, want: true},
		{name: "running never", state: StateSecondHalf, observed: int64Ref(observed), now: observed + 3600, want: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := IsConfirmedFinished(testCase.state, testCase.observed, testCase.now)
			if got != testCase.want {
				t.Fatalf("IsConfirmedFinished() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestPolicyFinalityThreshold(t *testing.T) {
	policy := Policy{FinalityThreshold: 5 * time.Minute}
	observed := int64Ref(1_700_000_000)

	if policy.IsConfirmedFinished(StateEnded, observed, *observed+299) {
		t.Fatalf("IsConfirmedFinished() = true before custom threshold")
	}
	if !policy.IsConfirmedFinished(StateEnded, observed, *observed+300) {
		t.Fatalf("IsConfirmedFinished() = false at custom threshold")
	}
}

func TestTerminalPredicates(t *testing.T) {
	for _, state := range States() {
		wantTerminal := state == StateEnded || state == StateCancelled
		if got := IsProvisionallyTerminal(state); got != wantTerminal {
			t.Fatalf("IsProvisionallyTerminal(%s) = %v, want %v", state, got, wantTerminal)
		}
		if got := CanResurrect(state); got != (state == StateEnded) {
			t.Fatalf("CanResurrect(%s) = %v", state, got)
		}
	}
}

func TestStateFromProviderCode(t *testing.T) {
	testCases := []struct {
		code int
		want State
	}{
		{code: 0, want: StateAbnormal},
		{code: 1, want: StateNotStarted},
		{code: 2, want: StateFirstHalf},
		{code: 3, want: StateHalfTime},
		{code: 4, want: StateSecondHalf},
		{code: 5, want: StateExtraTime},
		{code: 7, want: StateExtraTime},
		{code: 8, want: StateEnded},
		{code: 11, want: StateAbandoned},
		{code: 12, want: StateCancelled},
		{code: 13, want: StateUndetermined},
		{code: 99, want: StateUndetermined},
	}

	for _, testCase := range testCases {
		if got := StateFromProviderCode(testCase.code); got != testCase.want {
			t.Fatalf("StateFromProviderCode(%d) = %s, want %s", testCase.code, got, testCase.want)
		}
	}
}

func TestParseState(t *testing.T) {
	got, err := ParseState(" Second_Half ")
	if err != nil {
		t.Fatalf("ParseState() error = %v", err)
	}
	if got != StateSecondHalf {
		t.Fatalf("ParseState() = %s", got)
	}

	_, err = ParseState("full_time")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ParseState() error = %v, want ErrInvalidState", err)
	}
}

func TestClassifyTransition(t *testing.T) {
	testCases := []struct {
		from State
		to   State
		want TransitionKind
	}{
		{from: StateFirstHalf, to: StateFirstHalf, want: TransitionNone},
		{from: StateFirstHalf, to: StateHalfTime, want: TransitionNormal},
		{from: StateSecondHalf, to: StateEnded, want: TransitionTerminal},
		{from: StateNotStarted, to: StateCancelled, want: TransitionTerminal},
		{from: StateEnded, to: StateExtraTime, want: TransitionResurrection},
		{from: StateEnded, to: StateNotStarted, want: TransitionNormal},
		{from: StateCancelled, to: StateFirstHalf, want: TransitionNormal},
	}

	for _, testCase := range testCases {
		if got := ClassifyTransition(testCase.from, testCase.to); got != testCase.want {
			t.Fatalf("ClassifyTransition(%s, %s) = %q, want %q", testCase.from, testCase.to, got, testCase.want)
		}
	}
}
