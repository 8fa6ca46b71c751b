package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/defarge/availcal/internal/model"
	"github.com/defarge/availcal/libs/db"
)

// EventRepository reads and writes the events table. Recurrence is stored as
// NULL for non-recurring rows, matching writers that omit the column.
type EventRepository struct {
	pool *db.Pool
}

func NewEventRepository(pool *db.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventColumns = `id, kind, starts_at, ends_at, weekly_recurring`

func (r *EventRepository) NonRecurringOpenings(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE kind = 'opening'
			AND (weekly_recurring IS NULL OR weekly_recurring = false)
			AND starts_at >= $1
			AND ends_at <= $2
		ORDER BY starts_at ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *EventRepository) RecurringOpenings(ctx context.Context) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE kind = 'opening'
			AND weekly_recurring = true
		ORDER BY starts_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *EventRepository) Appointments(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE kind = 'appointment'
			AND weekly_recurring IS NULL
			AND starts_at >= $1
			AND ends_at <= $2
		ORDER BY starts_at ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *EventRepository) Insert(ctx context.Context, ev model.Event) error {
	var recurring *bool
	if ev.WeeklyRecurring {
		t := true
		recurring = &t
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, kind, starts_at, ends_at, weekly_recurring)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, string(ev.Kind), ev.StartsAt, ev.EndsAt, recurring)
	return err
}

func (r *EventRepository) ListRange(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE starts_at >= $1
			AND starts_at < $2
		ORDER BY starts_at ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			id        uuid.UUID
			kind      string
			startsAt  time.Time
			endsAt    time.Time
			recurring *bool
		)
		if err := rows.Scan(&id, &kind, &startsAt, &endsAt, &recurring); err != nil {
			return nil, err
		}
		events = append(events, model.Restore(
			id,
			model.Kind(kind),
			startsAt.UTC(),
			endsAt.UTC(),
			recurring != nil && *recurring,
		))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}
