package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes bookable ranges from already-booked ones.
type Kind string

const (
	KindOpening     Kind = "opening"
	KindAppointment Kind = "appointment"
)

// DateKeyFormat is the calendar-date key used throughout the service.
const DateKeyFormat = "2006-01-02"

var (
	ErrInvalidKind          = errors.New("event kind must be opening or appointment")
	ErrMissingTimestamp     = errors.New("event requires both starts_at and ends_at")
	ErrRecurringAppointment = errors.New("appointments cannot be weekly recurring")
)

// Event is a stored calendar event. Weekday and DateKey are derived from
// StartsAt at construction and never persisted.
type Event struct {
	ID              uuid.UUID
	Kind            Kind
	StartsAt        time.Time
	EndsAt          time.Time
	WeeklyRecurring bool

	Weekday time.Weekday
	DateKey string
}

// NewEvent validates the required fields and computes the derived ones.
// A start at or after the end is accepted here; such intervals simply
// generate no slots downstream.
func NewEvent(kind Kind, startsAt, endsAt time.Time, weeklyRecurring bool) (Event, error) {
	if kind != KindOpening && kind != KindAppointment {
		return Event{}, fmt.Errorf("%w (got %q)", ErrInvalidKind, kind)
	}
	if startsAt.IsZero() || endsAt.IsZero() {
		return Event{}, ErrMissingTimestamp
	}
	if kind == KindAppointment && weeklyRecurring {
		return Event{}, ErrRecurringAppointment
	}
	return Event{
		ID:              uuid.New(),
		Kind:            kind,
		StartsAt:        startsAt,
		EndsAt:          endsAt,
		WeeklyRecurring: weeklyRecurring,
		Weekday:         startsAt.Weekday(),
		DateKey:         startsAt.Format(DateKeyFormat),
	}, nil
}

// Restore rebuilds an event read back from storage, recomputing the derived
// fields instead of trusting anything outside the row's own columns.
func Restore(id uuid.UUID, kind Kind, startsAt, endsAt time.Time, weeklyRecurring bool) Event {
	return Event{
		ID:              id,
		Kind:            kind,
		StartsAt:        startsAt,
		EndsAt:          endsAt,
		WeeklyRecurring: weeklyRecurring,
		Weekday:         startsAt.Weekday(),
		DateKey:         startsAt.Format(DateKeyFormat),
	}
}
