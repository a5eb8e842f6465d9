package provider

import (
	"strings"

	"goalsync/internal/domain/match"
)

// Indexes into the provider's per-team score arrays.
const (
	scoreRegular   = 0
	scoreHalfTime  = 1
	scoreOvertime  = 5
	scorePenalties = 6
)

type livePayload struct {
	Code    int          `json:"code"`
	Message string       `json:"msg"`
	Results []matchEntry `json:"results"`
}

type matchEntry struct {
	ID                  string `json:"id"`
	StatusID            int    `json:"status_id"`
	Minute              *int   `json:"minute"`
	MinuteText          string `json:"minute_text"`
	ScheduledAt         int64  `json:"match_time"`
	KickoffAt           *int64 `json:"kickoff_timestamp"`
	SecondHalfKickoffAt *int64 `json:"second_half_kickoff_timestamp"`
	UpdatedAt           *int64 `json:"updated_at"`
	HomeScores          []int  `json:"home_scores"`
	AwayScores          []int  `json:"away_scores"`
}

func (e matchEntry) snapshot() match.Snapshot {
	return match.Snapshot{
		EventID:               strings.TrimSpace(e.ID),
		StatusCode:            e.StatusID,
		Minute:                e.Minute,
		MinuteText:            strings.TrimSpace(e.MinuteText),
		ScheduledStartTime:    e.ScheduledAt,
		FirstPeriodStartTime:  nonZero(e.KickoffAt),
		SecondPeriodStartTime: nonZero(e.SecondHalfKickoffAt),
		ProviderUpdatedAt:     nonZero(e.UpdatedAt),
		Score: match.Score{
			Home: teamScore(e.HomeScores),
			Away: teamScore(e.AwayScores),
		},
	}
}

func teamScore(values []int) match.TeamScore {
	at := func(index int) int {
		if index < len(values) {
			return values[index]
		}
		return 0
	}
	return match.TeamScore{
		Regular:   at(scoreRegular),
		HalfTime:  at(scoreHalfTime),
		Overtime:  at(scoreOvertime),
		Penalties: at(scorePenalties),
	}
}

// The feed sends 0 for kickoffs that have not happened.
func nonZero(value *int64) *int64 {
	if value == nil || *value <= 0 {
		return nil
	}
	v := *value
	return &v
}
