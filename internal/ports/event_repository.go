package ports

import (
	"context"
	"errors"

	"goalsync/internal/domain/match"
)

var (
	ErrEventNotFound   = errors.New("match event not found")
	ErrEventNotRetired = errors.New("match event is not confirmed finished")
)

// StaleFilter selects watchdog candidates. Events in an active state whose
// freshness stamps are older than StaleBefore qualify, and so do events with
// a pending readmission request.
type StaleFilter struct {
	StaleBefore int64
	Limit       int
}

type EventFilter struct {
	States         []match.State
	IncludeRetired bool
	Limit          int
}

type EventReadRepository interface {
	GetEvent(ctx context.Context, eventID string) (match.EventRecord, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]match.EventRecord, error)
	ListTransitions(ctx context.Context, eventID string, limit int) ([]match.Transition, error)
}

type EventRepository interface {
	EventReadRepository
	// CreateEvent inserts the record unless one already exists and returns
	// the stored row.
	CreateEvent(ctx context.Context, record match.EventRecord) (match.EventRecord, error)
	// UpdateEvent writes the listed fields plus the reconcile bookkeeping.
	UpdateEvent(ctx context.Context, record match.EventRecord, fields []match.Field) error
	AppendTransition(ctx context.Context, transition match.Transition) error
	ListStaleCandidates(ctx context.Context, filter StaleFilter) ([]match.EventRecord, error)
	// FlagReadmission only touches a confirmed finished record; anything else
	// yields ErrEventNotRetired.
	FlagReadmission(ctx context.Context, eventID string, requestedAt int64) error
	ListRetiredIDs(ctx context.Context, since int64) ([]string, error)
}
