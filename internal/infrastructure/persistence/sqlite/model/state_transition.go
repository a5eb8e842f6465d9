package model

type StateTransition struct {
	TransitionID uint64 `gorm:"column:transition_id;primaryKey;autoIncrement"`
	EventID      string `gorm:"column:event_id;type:text;not null;index"`
	FromState    string `gorm:"column:from_state;type:text;not null"`
	ToState      string `gorm:"column:to_state;type:text;not null"`
	Kind         string `gorm:"column:kind;type:text;not null"`
	Source       string `gorm:"column:source;type:text;not null"`
	ObservedAt   int64  `gorm:"column:observed_at;not null"`
}

func (StateTransition) TableName() string {
	return "state_transitions"
}
