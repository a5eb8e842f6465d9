package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/infrastructure/persistence/sqlite/model"
	"goalsync/internal/ports"
)

func setupEventRepository(t *testing.T) *EventRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "goalsync.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewEventRepository(db)
}

func int64Ref(value int64) *int64 {
	return &value
}

func TestCreateEventIsIdempotent(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	created, err := repo.CreateEvent(ctx, match.NewEventRecord("evt-1", 1_700_000_000))
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if created.State != match.StateUndetermined || created.ScheduledStartTime != 1_700_000_000 {
		t.Fatalf("CreateEvent() = %+v", created)
	}

	again := match.NewEventRecord("evt-1", 42)
	again.State = match.StateFirstHalf
	stored, err := repo.CreateEvent(ctx, again)
	if err != nil {
		t.Fatalf("CreateEvent(duplicate) error = %v", err)
	}
	if stored.State != match.StateUndetermined || stored.ScheduledStartTime != 1_700_000_000 {
		t.Fatalf("CreateEvent(duplicate) overwrote row: %+v", stored)
	}

	if _, err := repo.CreateEvent(ctx, match.NewEventRecord(" ", 0)); !errors.Is(err, match.ErrEventIDRequired) {
		t.Fatalf("CreateEvent(empty id) error = %v, want ErrEventIDRequired", err)
	}
}

func TestUpdateEventWritesOnlyListedFields(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	record, err := repo.CreateEvent(ctx, match.NewEventRecord("evt-1", 1_700_000_000))
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	minute := 12
	text := "12'"
	record.State = match.StateFirstHalf
	record.ProviderStatusCode = match.CodeFirstHalf
	record.ElapsedMinute = &minute
	record.ElapsedMinuteText = &text
	record.TerminalObservedAt = int64Ref(99)
	record.Score.Home.Regular = 2
	record.LastReconciledAt = int64Ref(1_700_000_700)

	fields := []match.Field{
		match.FieldState,
		match.FieldProviderStatusCode,
		match.FieldElapsedMinute,
		match.FieldElapsedMinuteText,
		match.FieldScore,
	}
	if err := repo.UpdateEvent(ctx, record, fields); err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}

	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.State != match.StateFirstHalf || got.ElapsedMinute == nil || *got.ElapsedMinute != 12 {
		t.Fatalf("GetEvent() = %+v", got)
	}
	if got.Score.Home.Regular != 2 {
		t.Fatalf("GetEvent() home score = %d", got.Score.Home.Regular)
	}
	if got.TerminalObservedAt != nil {
		t.Fatalf("GetEvent() TerminalObservedAt = %d, want untouched nil", *got.TerminalObservedAt)
	}
	if got.LastReconciledAt == nil || *got.LastReconciledAt != 1_700_000_700 {
		t.Fatalf("GetEvent() LastReconciledAt = %v", got.LastReconciledAt)
	}

	record.ElapsedMinute = nil
	record.ElapsedMinuteText = nil
	if err := repo.UpdateEvent(ctx, record, []match.Field{match.FieldElapsedMinute, match.FieldElapsedMinuteText}); err != nil {
		t.Fatalf("UpdateEvent(clear) error = %v", err)
	}
	got, err = repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.ElapsedMinute != nil || got.ElapsedMinuteText != nil {
		t.Fatalf("GetEvent() after clear minute = %v text = %v", got.ElapsedMinute, got.ElapsedMinuteText)
	}
}

func TestUpdateEventMissingRow(t *testing.T) {
	repo := setupEventRepository(t)

	err := repo.UpdateEvent(context.Background(), match.NewEventRecord("missing", 0), []match.Field{match.FieldState})
	if !errors.Is(err, ports.ErrEventNotFound) {
		t.Fatalf("UpdateEvent() error = %v, want ErrEventNotFound", err)
	}
	if _, err := repo.GetEvent(context.Background(), "missing"); !errors.Is(err, ports.ErrEventNotFound) {
		t.Fatalf("GetEvent() error = %v, want ErrEventNotFound", err)
	}
}

func TestListStaleCandidates(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()
	const staleBefore int64 = 1_700_001_000

	seed := func(id string, state match.State, reconciledAt *int64, mutate func(*match.EventRecord)) {
		t.Helper()
		record, err := repo.CreateEvent(ctx, match.NewEventRecord(id, 1_700_000_000))
		if err != nil {
			t.Fatalf("CreateEvent(%s) error = %v", id, err)
		}
		record.State = state
		record.LastReconciledAt = reconciledAt
		fields := []match.Field{match.FieldState}
		if mutate != nil {
			mutate(&record)
			fields = append(fields, match.FieldConfirmedFinishedAt, match.FieldReadmissionRequestedAt, match.FieldLastProviderUpdateTime)
		}
		if err := repo.UpdateEvent(ctx, record, fields); err != nil {
			t.Fatalf("UpdateEvent(%s) error = %v", id, err)
		}
	}

	seed("fresh-live", match.StateFirstHalf, int64Ref(staleBefore+10), nil)
	seed("stale-live", match.StateSecondHalf, int64Ref(staleBefore-10), nil)
	seed("stale-provider", match.StateHalfTime, int64Ref(staleBefore+10), func(r *match.EventRecord) {
		r.LastProviderUpdateTime = int64Ref(staleBefore - 600)
	})
	seed("stale-not-started", match.StateNotStarted, int64Ref(staleBefore-10), nil)
	seed("flagged", match.StateEnded, int64Ref(staleBefore+10), func(r *match.EventRecord) {
		r.ConfirmedFinishedAt = int64Ref(staleBefore - 100)
		r.ReadmissionRequestedAt = int64Ref(staleBefore)
	})
	seed("retired-live", match.StateFirstHalf, int64Ref(staleBefore-10), func(r *match.EventRecord) {
		r.ConfirmedFinishedAt = int64Ref(staleBefore - 100)
	})

	items, err := repo.ListStaleCandidates(ctx, ports.StaleFilter{StaleBefore: staleBefore})
	if err != nil {
		t.Fatalf("ListStaleCandidates() error = %v", err)
	}

	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.ID)
	}
	want := []string{"flagged", "stale-live", "stale-provider"}
	if len(got) != len(want) {
		t.Fatalf("ListStaleCandidates() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListStaleCandidates() = %v, want %v", got, want)
		}
	}

	limited, err := repo.ListStaleCandidates(ctx, ports.StaleFilter{StaleBefore: staleBefore, Limit: 1})
	if err != nil {
		t.Fatalf("ListStaleCandidates(limit) error = %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "flagged" {
		t.Fatalf("ListStaleCandidates(limit) = %+v", limited)
	}
}

func TestFlagReadmissionKeepsFirstRequest(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	record, err := repo.CreateEvent(ctx, match.NewEventRecord("evt-1", 0))
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	record.State = match.StateEnded
	record.ConfirmedFinishedAt = int64Ref(50)
	if err := repo.UpdateEvent(ctx, record, []match.Field{match.FieldState, match.FieldConfirmedFinishedAt}); err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}
	if err := repo.FlagReadmission(ctx, "evt-1", 100); err != nil {
		t.Fatalf("FlagReadmission() error = %v", err)
	}
	if err := repo.FlagReadmission(ctx, "evt-1", 200); err != nil {
		t.Fatalf("FlagReadmission(second) error = %v", err)
	}

	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.ReadmissionRequestedAt == nil || *got.ReadmissionRequestedAt != 100 {
		t.Fatalf("ReadmissionRequestedAt = %v, want 100", got.ReadmissionRequestedAt)
	}

	if err := repo.FlagReadmission(ctx, "missing", 100); !errors.Is(err, ports.ErrEventNotFound) {
		t.Fatalf("FlagReadmission(missing) error = %v, want ErrEventNotFound", err)
	}
}

func TestFlagReadmissionLeavesLiveEventAlone(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	record, err := repo.CreateEvent(ctx, match.NewEventRecord("evt-live", 0))
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	record.State = match.StateExtraTime
	if err := repo.UpdateEvent(ctx, record, []match.Field{match.FieldState}); err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}

	if err := repo.FlagReadmission(ctx, "evt-live", 100); !errors.Is(err, ports.ErrEventNotRetired) {
		t.Fatalf("FlagReadmission() error = %v, want ErrEventNotRetired", err)
	}
	got, err := repo.GetEvent(ctx, "evt-live")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.ReadmissionRequestedAt != nil {
		t.Fatalf("ReadmissionRequestedAt = %v, want nil", *got.ReadmissionRequestedAt)
	}
}

func TestListEventsAndRetiredIDs(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		record, err := repo.CreateEvent(ctx, match.NewEventRecord(id, 1_700_000_000))
		if err != nil {
			t.Fatalf("CreateEvent(%s) error = %v", id, err)
		}
		record.State = match.StateSecondHalf
		fields := []match.Field{match.FieldState}
		if id == "c" {
			record.State = match.StateEnded
			record.ConfirmedFinishedAt = int64Ref(500)
			fields = append(fields, match.FieldConfirmedFinishedAt)
		}
		if err := repo.UpdateEvent(ctx, record, fields); err != nil {
			t.Fatalf("UpdateEvent(%s) error = %v", id, err)
		}
	}

	live, err := repo.ListEvents(ctx, ports.EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(live) != 2 || live[0].ID != "a" || live[1].ID != "b" {
		t.Fatalf("ListEvents() = %+v", live)
	}

	ended, err := repo.ListEvents(ctx, ports.EventFilter{States: []match.State{match.StateEnded}, IncludeRetired: true})
	if err != nil {
		t.Fatalf("ListEvents(ended) error = %v", err)
	}
	if len(ended) != 1 || ended[0].ID != "c" {
		t.Fatalf("ListEvents(ended) = %+v", ended)
	}

	retired, err := repo.ListRetiredIDs(ctx, 400)
	if err != nil {
		t.Fatalf("ListRetiredIDs() error = %v", err)
	}
	if len(retired) != 1 || retired[0] != "c" {
		t.Fatalf("ListRetiredIDs() = %v", retired)
	}
	retired, err = repo.ListRetiredIDs(ctx, 600)
	if err != nil {
		t.Fatalf("ListRetiredIDs() error = %v", err)
	}
	if len(retired) != 0 {
		t.Fatalf("ListRetiredIDs(after) = %v", retired)
	}
}

func TestListTransitionsKeepsChronologicalOrder(t *testing.T) {
	repo := setupEventRepository(t)
	ctx := context.Background()

	steps := []match.Transition{
		{EventID: "evt-1", From: match.StateNotStarted, To: match.StateFirstHalf, Kind: match.TransitionNormal, Source: "tick", ObservedAt: 1},
		{EventID: "evt-1", From: match.StateFirstHalf, To: match.StateHalfTime, Kind: match.TransitionNormal, Source: "tick", ObservedAt: 2},
		{EventID: "evt-1", From: match.StateHalfTime, To: match.StateSecondHalf, Kind: match.TransitionNormal, Source: "watchdog", ObservedAt: 3},
		{EventID: "evt-2", From: match.StateNotStarted, To: match.StateCancelled, Kind: match.TransitionTerminal, Source: "tick", ObservedAt: 4},
	}
	for _, step := range steps {
		if err := repo.AppendTransition(ctx, step); err != nil {
			t.Fatalf("AppendTransition() error = %v", err)
		}
	}

	got, err := repo.ListTransitions(ctx, "evt-1", 2)
	if err != nil {
		t.Fatalf("ListTransitions() error = %v", err)
	}
	if len(got) != 2 || got[0].ObservedAt != 2 || got[1].ObservedAt != 3 || got[1].Source != "watchdog" {
		t.Fatalf("ListTransitions() = %+v", got)
	}
}

func TestStoreFailureCarriesStack(t *testing.T) {
	repo := setupEventRepository(t)
	sqlDB, err := repo.db.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = repo.GetEvent(context.Background(), "evt-1")
	if err == nil || errors.Is(err, ports.ErrEventNotFound) {
		t.Fatalf("GetEvent() on closed db error = %v, want store failure", err)
	}
	var stackErr *errs.StackError
	if !errors.As(err, &stackErr) || len(stackErr.Stack()) == 0 {
		t.Fatalf("GetEvent() error = %v, want a captured stack", err)
	}
}
