package match

import "time"

const (
	DefaultFinalityThreshold = 15 * time.Minute
	DefaultDriftThreshold    = 2
)

// Policy holds the tunables of the lifecycle rules.
type Policy struct {
	FinalityThreshold time.Duration
	DriftThreshold    int
}

func DefaultPolicy() Policy {
	return Policy{
		FinalityThreshold: DefaultFinalityThreshold,
		DriftThreshold:    DefaultDriftThreshold,
	}
}

func (p Policy) normalized() Policy {
	if p.FinalityThreshold <= 0 {
		p.FinalityThreshold = DefaultFinalityThreshold
	}
	if p.DriftThreshold <= 0 {
		p.DriftThreshold = DefaultDriftThreshold
	}
	return p
}

// IsProvisionallyTerminal reports whether the state looks finished.
func IsProvisionallyTerminal(state State) bool {
	return state == StateEnded || state == StateCancelled
}

// CanResurrect reports whether a later active snapshot is an expected
// transition out of this state (extra time or penalties after regulation).
func CanResurrect(state State) bool {
	return state == StateEnded
}

// IsConfirmedFinished applies the finality rule with the default threshold.
func IsConfirmedFinished(state State, terminalObservedAt *int64, now int64) bool {
	return DefaultPolicy().IsConfirmedFinished(state, terminalObservedAt, now)
}

// IsConfirmedFinished is true for cancelled events, and for ended events that
// have stayed ended for at least the finality threshold.
func (p Policy) IsConfirmedFinished(state State, terminalObservedAt *int64, now int64) bool {
	switch state {
	case StateCancelled:
		return true
	case StateEnded:
		if terminalObservedAt == nil {
			return false
		}
		threshold := int64(p.normalized().FinalityThreshold / time.Second)
		return now-*terminalObservedAt >= threshold
	default:
		return false
	}
}

type TransitionKind string

const (
	TransitionNone         TransitionKind = ""
	TransitionNormal       TransitionKind = "normal"
	TransitionTerminal     TransitionKind = "terminal"
	TransitionResurrection TransitionKind = "resurrection"
	TransitionConfirmed    TransitionKind = "confirmed"
	TransitionAnomaly      TransitionKind = "anomaly"
	TransitionReadmitted   TransitionKind = "readmitted"
)

// Transition is one entry of an event's lifecycle log.
type Transition struct {
	EventID    string
	From       State
	To         State
	Kind       TransitionKind
	Source     string
	ObservedAt int64
}

// ClassifyTransition names a provider-reported state change. Every change is
// accepted; the kind only drives bookkeeping and logging.
func ClassifyTransition(from State, to State) TransitionKind {
	switch {
	case from == to:
		return TransitionNone
	case IsProvisionallyTerminal(to):
		return TransitionTerminal
	case CanResurrect(from) && IsActive(to):
		return TransitionResurrection
	default:
		return TransitionNormal
	}
}
