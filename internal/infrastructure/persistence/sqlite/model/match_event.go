package model

// MatchEvent is one tracked event. Timestamps are epoch seconds.
type MatchEvent struct {
	EventID                string  `gorm:"column:event_id;type:text;primaryKey"`
	State                  string  `gorm:"column:state;type:text;not null;index:idx_match_events_state_reconciled,priority:1"`
	ProviderStatusCode     int     `gorm:"column:provider_status_code;not null"`
	ScheduledStartTime     int64   `gorm:"column:scheduled_start_time;not null;index"`
	FirstPeriodStartTime   *int64  `gorm:"column:first_period_start_time"`
	SecondPeriodStartTime  *int64  `gorm:"column:second_period_start_time"`
	ElapsedMinute          *int    `gorm:"column:elapsed_minute"`
	ElapsedMinuteText      *string `gorm:"column:elapsed_minute_text;type:text"`
	TerminalObservedAt     *int64  `gorm:"column:terminal_observed_at"`
	ConfirmedFinishedAt    *int64  `gorm:"column:confirmed_finished_at;index"`
	ReadmissionRequestedAt *int64  `gorm:"column:readmission_requested_at;index"`
	LastProviderUpdateTime *int64  `gorm:"column:last_provider_update_time"`
	LastReconciledAt       *int64  `gorm:"column:last_reconciled_at;index:idx_match_events_state_reconciled,priority:2"`
	HomeScore              int     `gorm:"column:home_score;not null;default:0"`
	AwayScore              int     `gorm:"column:away_score;not null;default:0"`
	HomeHalfTimeScore      int     `gorm:"column:home_half_time_score;not null;default:0"`
	AwayHalfTimeScore      int     `gorm:"column:away_half_time_score;not null;default:0"`
	HomeOvertimeScore      int     `gorm:"column:home_overtime_score;not null;default:0"`
	AwayOvertimeScore      int     `gorm:"column:away_overtime_score;not null;default:0"`
	HomePenaltyScore       int     `gorm:"column:home_penalty_score;not null;default:0"`
	AwayPenaltyScore       int     `gorm:"column:away_penalty_score;not null;default:0"`
	CreatedAt              int64   `gorm:"column:created_at;not null"`
	UpdatedAt              int64   `gorm:"column:updated_at;not null"`
}

func (MatchEvent) TableName() string {
	return "match_events"
}
