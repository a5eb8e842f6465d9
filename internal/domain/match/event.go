package match

// TeamScore holds one side's counters per period.
type TeamScore struct {
	Regular   int `json:"regular" yaml:"regular" toml:"regular"`
	HalfTime  int `json:"half_time" yaml:"half_time" toml:"half_time"`
	Overtime  int `json:"overtime" yaml:"overtime" toml:"overtime"`
	Penalties int `json:"penalties" yaml:"penalties" toml:"penalties"`
}

type Score struct {
	Home TeamScore `json:"home" yaml:"home" toml:"home"`
	Away TeamScore `json:"away" yaml:"away" toml:"away"`
}

// EventRecord is the persisted view of one tracked event. Timestamps are
// epoch seconds.
type EventRecord struct {
	ID                     string  `json:"id" yaml:"id"`
	State                  State   `json:"state" yaml:"state"`
	ProviderStatusCode     int     `json:"provider_status_code" yaml:"provider_status_code"`
	ScheduledStartTime     int64   `json:"scheduled_start_time" yaml:"scheduled_start_time"`
	FirstPeriodStartTime   *int64  `json:"first_period_start_time,omitempty" yaml:"first_period_start_time,omitempty"`
	SecondPeriodStartTime  *int64  `json:"second_period_start_time,omitempty" yaml:"second_period_start_time,omitempty"`
	ElapsedMinute          *int    `json:"elapsed_minute,omitempty" yaml:"elapsed_minute,omitempty"`
	ElapsedMinuteText      *string `json:"elapsed_minute_text,omitempty" yaml:"elapsed_minute_text,omitempty"`
	TerminalObservedAt     *int64  `json:"terminal_observed_at,omitempty" yaml:"terminal_observed_at,omitempty"`
	ConfirmedFinishedAt    *int64  `json:"confirmed_finished_at,omitempty" yaml:"confirmed_finished_at,omitempty"`
	ReadmissionRequestedAt *int64  `json:"readmission_requested_at,omitempty" yaml:"readmission_requested_at,omitempty"`
	LastProviderUpdateTime *int64  `json:"last_provider_update_time,omitempty" yaml:"last_provider_update_time,omitempty"`
	LastReconciledAt       *int64  `json:"last_reconciled_at,omitempty" yaml:"last_reconciled_at,omitempty"`
	Score                  Score   `json:"score" yaml:"score"`
}

// Retired reports whether the event left the tick working set.
func (r EventRecord) Retired() bool {
	return r.ConfirmedFinishedAt != nil
}

// NewEventRecord builds the minimal record for an event seen for the first
// time. Reconciliation fills in everything else.
func NewEventRecord(id string, scheduledStartTime int64) EventRecord {
	return EventRecord{
		ID:                 id,
		State:              StateUndetermined,
		ProviderStatusCode: CodeUndetermined,
		ScheduledStartTime: scheduledStartTime,
	}
}

// Snapshot is one provider observation of an event.
type Snapshot struct {
	EventID               string
	StatusCode            int
	Minute                *int
	MinuteText            string
	Score                 Score
	ScheduledStartTime    int64
	FirstPeriodStartTime  *int64
	SecondPeriodStartTime *int64
	ProviderUpdatedAt     *int64
}

func (s Snapshot) State() State {
	return StateFromProviderCode(s.StatusCode)
}
