package match

import (
	"strconv"
	"strings"
)

const (
	BreakMinute        = 45
	FirstHalfMinutes   = 45
	RegulationMinutes  = 90
	ExtraTimeMaxMinute = 120
)

type minuteBounds struct {
	low  int
	high int
}

var boundsByState = map[State]minuteBounds{
	StateFirstHalf:  {low: 1, high: FirstHalfMinutes},
	StateHalfTime:   {low: BreakMinute, high: BreakMinute},
	StateSecondHalf: {low: FirstHalfMinutes + 1, high: RegulationMinutes},
	StateExtraTime:  {low: RegulationMinutes + 1, high: ExtraTimeMaxMinute},
}

// ComputeElapsedMinute derives the match minute from the period kickoff
// timestamps (epoch seconds). It returns nil when the relevant kickoff is
// unknown and for every state without a running clock.
func ComputeElapsedMinute(state State, now int64, firstPeriodStart *int64, secondPeriodStart *int64) *int {
	minute, _ := elapsedMinute(state, now, firstPeriodStart, secondPeriodStart)
	return minute
}

// elapsedMinute also reports whether the raw value ran past the period bound.
func elapsedMinute(state State, now int64, firstPeriodStart *int64, secondPeriodStart *int64) (*int, bool) {
	switch state {
	case StateHalfTime:
		return intPtr(BreakMinute), false
	case StateFirstHalf:
		if firstPeriodStart == nil {
			return nil, false
		}
		raw := minutesSince(now, *firstPeriodStart)
		return clampTo(boundsByState[state], raw), raw > FirstHalfMinutes
	case StateSecondHalf:
		if secondPeriodStart == nil {
			return nil, false
		}
		raw := FirstHalfMinutes + minutesSince(now, *secondPeriodStart)
		return clampTo(boundsByState[state], raw), raw > RegulationMinutes
	default:
		return nil, false
	}
}

func minutesSince(now int64, start int64) int {
	diff := now - start
	// floor division for clocks slightly behind the kickoff stamp
	minutes := diff / 60
	if diff < 0 && diff%60 != 0 {
		minutes--
	}
	return int(minutes) + 1
}

// ClampMinute bounds a provider-reported minute to the range valid for the
// state. States without a running clock yield nil.
func ClampMinute(state State, minute int) *int {
	bounds, ok := boundsByState[state]
	if !ok {
		return nil
	}
	return clampTo(bounds, minute)
}

func clampTo(bounds minuteBounds, minute int) *int {
	if minute < bounds.low {
		minute = bounds.low
	}
	if minute > bounds.high {
		minute = bounds.high
	}
	return intPtr(minute)
}

// ParseDisplayedMinute reconstructs the numeric minute from a display string.
// "26'" is 26, "45+2" is 45, "HT" is 45 and "FT" is nil. Anything it cannot
// read degrades to nil.
func ParseDisplayedMinute(text string, state State) *int {
	if IsProvisionallyTerminal(state) {
		return nil
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	switch strings.ToUpper(trimmed) {
	case "HT":
		return intPtr(BreakMinute)
	case "FT", "AET", "PEN", "AP":
		return nil
	}

	end := 0
	for end < len(trimmed) && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}

	value, err := strconv.Atoi(trimmed[:end])
	if err != nil || value <= 0 {
		return nil
	}
	return intPtr(value)
}

// FormatMinuteText synthesizes the display string when the provider sent
// none. overflow marks a clock that ran past the period bound.
func FormatMinuteText(state State, minute *int, overflow bool) string {
	switch state {
	case StateHalfTime:
		return "HT"
	case StateEnded:
		return "FT"
	}
	if minute == nil {
		return ""
	}
	if overflow {
		return strconv.Itoa(*minute) + "+"
	}
	return strconv.Itoa(*minute) + "'"
}

func intPtr(value int) *int {
	return &value
}
