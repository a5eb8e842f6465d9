package ports

import (
	"context"

	"goalsync/internal/domain/match"
)

// TransitionPublisher forwards lifecycle changes to downstream readers.
// Delivery is best effort.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, transition match.Transition, record match.EventRecord) error
}
