package provider

import (
	"context"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

type fixtureFile struct {
	Events []fixtureEvent `toml:"events"`
}

type fixtureEvent struct {
	ID                  string `toml:"id"`
	Status              int    `toml:"status"`
	Minute              *int   `toml:"minute"`
	MinuteText          string `toml:"minute_text"`
	ScheduledAt         int64  `toml:"scheduled_at"`
	KickoffAt           *int64 `toml:"kickoff_at"`
	SecondHalfKickoffAt *int64 `toml:"second_half_kickoff_at"`
	UpdatedAt           *int64 `toml:"updated_at"`
	HomeScores          []int  `toml:"home_scores"`
	AwayScores          []int  `toml:"away_scores"`
}

func (e fixtureEvent) entry() matchEntry {
	return matchEntry{
		ID:                  e.ID,
		StatusID:            e.Status,
		Minute:              e.Minute,
		MinuteText:          e.MinuteText,
		ScheduledAt:         e.ScheduledAt,
		KickoffAt:           e.KickoffAt,
		SecondHalfKickoffAt: e.SecondHalfKickoffAt,
		UpdatedAt:           e.UpdatedAt,
		HomeScores:          e.HomeScores,
		AwayScores:          e.AwayScores,
	}
}

// FixtureClient serves snapshots from a TOML file. The file is re-read on
// every call so it can be edited while the service runs.
type FixtureClient struct {
	path string
}

var _ ports.ProviderClient = (*FixtureClient)(nil)

func NewFixtureClient(path string) *FixtureClient {
	return &FixtureClient{path: strings.TrimSpace(path)}
}

func (c *FixtureClient) FetchLiveSnapshotBatch(ctx context.Context) ([]match.Snapshot, error) {
	events, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]match.Snapshot, 0, len(events))
	for _, event := range events {
		snapshots = append(snapshots, event.entry().snapshot())
	}
	return snapshots, nil
}

func (c *FixtureClient) FetchEventDetail(ctx context.Context, eventID string) (match.Snapshot, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return match.Snapshot{}, match.ErrEventIDRequired
	}
	events, err := c.load(ctx)
	if err != nil {
		return match.Snapshot{}, err
	}
	for _, event := range events {
		if strings.TrimSpace(event.ID) == id {
			return event.entry().snapshot(), nil
		}
	}
	return match.Snapshot{}, errs.Wrapf(ports.ErrEventNotFound, "fixture detail %q", id)
}

func (c *FixtureClient) load(ctx context.Context) ([]fixtureEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errs.Wrapf(err, "read fixture %q", c.path)
	}
	var file fixtureFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Permanent(errs.Wrapf(err, "decode fixture %q", c.path))
	}
	return file.Events, nil
}
