package match

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a tracked event.
type State string

const (
	StateNotStarted   State = "not_started"
	StateFirstHalf    State = "first_half"
	StateHalfTime     State = "half_time"
	StateSecondHalf   State = "second_half"
	StateExtraTime    State = "extra_time"
	StateEnded        State = "ended"
	StateDelayed      State = "delayed"
	StateInterrupted  State = "interrupted"
	StateAbandoned    State = "abandoned"
	StateCancelled    State = "cancelled"
	StateUndetermined State = "undetermined"
	StateAbnormal     State = "abnormal"
)

// Provider status codes. Overtime and penalty shootout collapse into
// StateExtraTime; the raw code is kept on the record.
const (
	CodeAbnormal     = 0
	CodeNotStarted   = 1
	CodeFirstHalf    = 2
	CodeHalfTime     = 3
	CodeSecondHalf   = 4
	CodeOvertime     = 5
	CodeOvertimeOld  = 6
	CodePenalties    = 7
	CodeEnded        = 8
	CodeDelayed      = 9
	CodeInterrupted  = 10
	CodeCutInHalf    = 11
	CodeCancelled    = 12
	CodeUndetermined = 13
)

var allStates = []State{
	StateNotStarted,
	StateFirstHalf,
	StateHalfTime,
	StateSecondHalf,
	StateExtraTime,
	StateEnded,
	StateDelayed,
	StateInterrupted,
	StateAbandoned,
	StateCancelled,
	StateUndetermined,
	StateAbnormal,
}

var stateByCode = map[int]State{
	CodeAbnormal:     StateAbnormal,
	CodeNotStarted:   StateNotStarted,
	CodeFirstHalf:    StateFirstHalf,
	CodeHalfTime:     StateHalfTime,
	CodeSecondHalf:   StateSecondHalf,
	CodeOvertime:     StateExtraTime,
	CodeOvertimeOld:  StateExtraTime,
	CodePenalties:    StateExtraTime,
	CodeEnded:        StateEnded,
	CodeDelayed:      StateDelayed,
	CodeInterrupted:  StateInterrupted,
	CodeCutInHalf:    StateAbandoned,
	CodeCancelled:    StateCancelled,
	CodeUndetermined: StateUndetermined,
}

// States returns the closed set of lifecycle states.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// StateFromProviderCode maps a raw provider status code. Unknown codes map to
// StateUndetermined.
func StateFromProviderCode(code int) State {
	if state, ok := stateByCode[code]; ok {
		return state
	}
	return StateUndetermined
}

func ParseState(raw string) (State, error) {
	normalized := State(strings.ToLower(strings.TrimSpace(raw)))
	for _, state := range allStates {
		if state == normalized {
			return state, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
}

func (s State) String() string {
	return string(s)
}

// IsActive reports whether the event is in play or in the half-time break.
func IsActive(state State) bool {
	switch state {
	case StateFirstHalf, StateHalfTime, StateSecondHalf, StateExtraTime:
		return true
	default:
		return false
	}
}
