package publisher

import (
	"context"

	"goalsync/internal/domain/match"
	"goalsync/internal/ports"
)

// Noop drops every transition.
type Noop struct{}

var _ ports.TransitionPublisher = Noop{}

func (Noop) PublishTransition(context.Context, match.Transition, match.EventRecord) error {
	return nil
}
