package model

// All lists the tables managed by AutoMigrate.
func All() []any {
	return []any{
		&MatchEvent{},
		&StateTransition{},
		&SyncKV{},
	}
}
