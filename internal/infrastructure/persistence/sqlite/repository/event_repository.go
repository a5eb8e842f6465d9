package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/infrastructure/persistence/sqlite/model"
	"goalsync/internal/ports"
)

type EventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.EventRepository = (*EventRepository)(nil)

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

func (r *EventRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *EventRepository) GetEvent(ctx context.Context, eventID string) (match.EventRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return match.EventRecord{}, err
	}
	return getEventByID(db, eventID)
}

func (r *EventRepository) ListEvents(ctx context.Context, filter ports.EventFilter) ([]match.EventRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.MatchEvent{})
	if len(filter.States) > 0 {
		query = query.Where("state IN ?", stateNames(filter.States))
	}
	if !filter.IncludeRetired {
		query = query.Where("confirmed_finished_at IS NULL")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.MatchEvent
	if err := query.Order("scheduled_start_time asc").Order("event_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query match events")
	}
	return mapEvents(rows), nil
}

func (r *EventRepository) ListTransitions(ctx context.Context, eventID string, limit int) ([]match.Transition, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Where("event_id = ?", strings.TrimSpace(eventID)).Order("transition_id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.StateTransition
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query state transitions")
	}

	items := make([]match.Transition, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		items = append(items, match.Transition{
			EventID:    row.EventID,
			From:       match.State(row.FromState),
			To:         match.State(row.ToState),
			Kind:       match.TransitionKind(row.Kind),
			Source:     row.Source,
			ObservedAt: row.ObservedAt,
		})
	}
	return items, nil
}

func (r *EventRepository) CreateEvent(ctx context.Context, record match.EventRecord) (match.EventRecord, error) {
	if strings.TrimSpace(record.ID) == "" {
		return match.EventRecord{}, match.ErrEventIDRequired
	}

	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return match.EventRecord{}, err
		}

		row := toModel(record)
		now := r.now().UTC().Unix()
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return match.EventRecord{}, errs.WithStack(errs.Wrap(err, "insert match event"))
		}
		return getEventByID(db, record.ID)
	}

	var created match.EventRecord
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ports.WithTxContext(ctx, tx)
		row, err := r.CreateEvent(txCtx, record)
		if err != nil {
			return err
		}
		created = row
		return nil
	}); err != nil {
		return match.EventRecord{}, err
	}
	return created, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, record match.EventRecord, fields []match.Field) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates, err := columnUpdates(record, fields)
	if err != nil {
		return err
	}
	if record.LastReconciledAt != nil {
		updates["last_reconciled_at"] = *record.LastReconciledAt
	}
	updates["updated_at"] = r.now().UTC().Unix()

	result := db.Model(&model.MatchEvent{}).
		Where("event_id = ?", record.ID).
		Updates(updates)
	if result.Error != nil {
		return errs.WithStack(errs.Wrapf(result.Error, "update match event %q", record.ID))
	}
	if result.RowsAffected == 0 {
		return ports.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) AppendTransition(ctx context.Context, transition match.Transition) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.StateTransition{
		EventID:    transition.EventID,
		FromState:  string(transition.From),
		ToState:    string(transition.To),
		Kind:       string(transition.Kind),
		Source:     transition.Source,
		ObservedAt: transition.ObservedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.WithStack(errs.Wrap(err, "insert state transition"))
	}
	return nil
}

func (r *EventRepository) ListStaleCandidates(ctx context.Context, filter ports.StaleFilter) ([]match.EventRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]match.State, 0, 4)
	for _, state := range match.States() {
		if match.IsActive(state) {
			active = append(active, state)
		}
	}

	query := db.Model(&model.MatchEvent{}).
		Where(
			"(state IN ? AND confirmed_finished_at IS NULL AND "+
				"(last_reconciled_at IS NULL OR last_reconciled_at < ? OR "+
				"(last_provider_update_time IS NOT NULL AND last_provider_update_time < ?))) "+
				"OR readmission_requested_at IS NOT NULL",
			stateNames(active), filter.StaleBefore, filter.StaleBefore,
		).
		Order("CASE WHEN readmission_requested_at IS NULL THEN 1 ELSE 0 END").
		Order("COALESCE(last_reconciled_at, 0) asc").
		Order("event_id asc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.MatchEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query stale match events")
	}
	return mapEvents(rows), nil
}

func (r *EventRepository) FlagReadmission(ctx context.Context, eventID string, requestedAt int64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(eventID)
	result := db.Model(&model.MatchEvent{}).
		Where("event_id = ? AND confirmed_finished_at IS NOT NULL", id).
		Updates(map[string]any{
			"readmission_requested_at": gorm.Expr("COALESCE(readmission_requested_at, ?)", requestedAt),
			"updated_at":               r.now().UTC().Unix(),
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "flag match event readmission")
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := getEventByID(db, id); err != nil {
		return err
	}
	return ports.ErrEventNotRetired
}

func (r *EventRepository) ListRetiredIDs(ctx context.Context, since int64) ([]string, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := db.Model(&model.MatchEvent{}).
		Where("confirmed_finished_at IS NOT NULL AND confirmed_finished_at >= ?", since).
		Order("event_id asc").
		Pluck("event_id", &ids).Error; err != nil {
		return nil, errs.Wrap(err, "query retired match events")
	}
	return ids, nil
}

func getEventByID(db *gorm.DB, eventID string) (match.EventRecord, error) {
	var row model.MatchEvent
	if err := db.Where("event_id = ?", strings.TrimSpace(eventID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return match.EventRecord{}, ports.ErrEventNotFound
		}
		return match.EventRecord{}, errs.WithStack(errs.Wrap(err, "query match event"))
	}
	return mapEvent(row), nil
}

func columnUpdates(record match.EventRecord, fields []match.Field) (map[string]any, error) {
	updates := make(map[string]any, len(fields)+2)
	for _, field := range fields {
		switch field {
		case match.FieldState:
			updates["state"] = string(record.State)
		case match.FieldProviderStatusCode:
			updates["provider_status_code"] = record.ProviderStatusCode
		case match.FieldScheduledStartTime:
			updates["scheduled_start_time"] = record.ScheduledStartTime
		case match.FieldFirstPeriodStartTime:
			updates["first_period_start_time"] = nullable(record.FirstPeriodStartTime)
		case match.FieldSecondPeriodStartTime:
			updates["second_period_start_time"] = nullable(record.SecondPeriodStartTime)
		case match.FieldElapsedMinute:
			updates["elapsed_minute"] = nullable(record.ElapsedMinute)
		case match.FieldElapsedMinuteText:
			updates["elapsed_minute_text"] = nullable(record.ElapsedMinuteText)
		case match.FieldTerminalObservedAt:
			updates["terminal_observed_at"] = nullable(record.TerminalObservedAt)
		case match.FieldConfirmedFinishedAt:
			updates["confirmed_finished_at"] = nullable(record.ConfirmedFinishedAt)
		case match.FieldReadmissionRequestedAt:
			updates["readmission_requested_at"] = nullable(record.ReadmissionRequestedAt)
		case match.FieldLastProviderUpdateTime:
			updates["last_provider_update_time"] = nullable(record.LastProviderUpdateTime)
		case match.FieldScore:
			score := record.Score
			updates["home_score"] = score.Home.Regular
			updates["away_score"] = score.Away.Regular
			updates["home_half_time_score"] = score.Home.HalfTime
			updates["away_half_time_score"] = score.Away.HalfTime
			updates["home_overtime_score"] = score.Home.Overtime
			updates["away_overtime_score"] = score.Away.Overtime
			updates["home_penalty_score"] = score.Home.Penalties
			updates["away_penalty_score"] = score.Away.Penalties
		default:
			return nil, fmt.Errorf("unsupported match event field %q", field)
		}
	}
	return updates, nil
}

// nullable turns a nil pointer into an untyped nil so every driver writes NULL.
func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

func stateNames(states []match.State) []string {
	names := make([]string, 0, len(states))
	for _, state := range states {
		name := string(state)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func toModel(record match.EventRecord) model.MatchEvent {
	return model.MatchEvent{
		EventID:                strings.TrimSpace(record.ID),
		State:                  string(record.State),
		ProviderStatusCode:     record.ProviderStatusCode,
		ScheduledStartTime:     record.ScheduledStartTime,
		FirstPeriodStartTime:   record.FirstPeriodStartTime,
		SecondPeriodStartTime:  record.SecondPeriodStartTime,
		ElapsedMinute:          record.ElapsedMinute,
		ElapsedMinuteText:      record.ElapsedMinuteText,
		TerminalObservedAt:     record.TerminalObservedAt,
		ConfirmedFinishedAt:    record.ConfirmedFinishedAt,
		ReadmissionRequestedAt: record.ReadmissionRequestedAt,
		LastProviderUpdateTime: record.LastProviderUpdateTime,
		LastReconciledAt:       record.LastReconciledAt,
		HomeScore:              record.Score.Home.Regular,
		AwayScore:              record.Score.Away.Regular,
		HomeHalfTimeScore:      record.Score.Home.HalfTime,
		AwayHalfTimeScore:      record.Score.Away.HalfTime,
		HomeOvertimeScore:      record.Score.Home.Overtime,
		AwayOvertimeScore:      record.Score.Away.Overtime,
		HomePenaltyScore:       record.Score.Home.Penalties,
		AwayPenaltyScore:       record.Score.Away.Penalties,
	}
}

func mapEvent(row model.MatchEvent) match.EventRecord {
	return match.EventRecord{
		ID:                     row.EventID,
		State:                  match.State(row.State),
		ProviderStatusCode:     row.ProviderStatusCode,
		ScheduledStartTime:     row.ScheduledStartTime,
		FirstPeriodStartTime:   row.FirstPeriodStartTime,
		SecondPeriodStartTime:  row.SecondPeriodStartTime,
		ElapsedMinute:          row.ElapsedMinute,
		ElapsedMinuteText:      row.ElapsedMinuteText,
		TerminalObservedAt:     row.TerminalObservedAt,
		ConfirmedFinishedAt:    row.ConfirmedFinishedAt,
		ReadmissionRequestedAt: row.ReadmissionRequestedAt,
		LastProviderUpdateTime: row.LastProviderUpdateTime,
		LastReconciledAt:       row.LastReconciledAt,
		Score: match.Score{
			Home: match.TeamScore{
				Regular:   row.HomeScore,
				HalfTime:  row.HomeHalfTimeScore,
				Overtime:  row.HomeOvertimeScore,
				Penalties: row.HomePenaltyScore,
			},
			Away: match.TeamScore{
				Regular:   row.AwayScore,
				HalfTime:  row.AwayHalfTimeScore,
				Overtime:  row.AwayOvertimeScore,
				Penalties: row.AwayPenaltyScore,
			},
		},
	}
}

func mapEvents(rows []model.MatchEvent) []match.EventRecord {
	items := make([]match.EventRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEvent(row))
	}
	return items
}
