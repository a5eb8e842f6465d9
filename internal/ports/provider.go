package ports

import (
	"context"
	"errors"

	"goalsync/internal/domain/match"
)

var ErrProviderUnavailable = errors.New("provider unavailable")

// ProviderClient is the upstream live-data feed.
type ProviderClient interface {
	FetchLiveSnapshotBatch(ctx context.Context) ([]match.Snapshot, error)
	FetchEventDetail(ctx context.Context, eventID string) (match.Snapshot, error)
}
