package availability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/defarge/availcal/internal/model"
	"github.com/defarge/availcal/internal/schedule"
	"github.com/defarge/availcal/internal/slots"
)

// EventStore is the read side of the events table. Implementations return
// events ordered by starts_at ascending.
type EventStore interface {
	// NonRecurringOpenings returns openings without weekly recurrence whose
	// interval lies inside [from, to].
	NonRecurringOpenings(ctx context.Context, from, to time.Time) ([]model.Event, error)
	// RecurringOpenings returns every weekly-recurring opening regardless of
	// its stored date; recurrence makes any of them a candidate for any window.
	RecurringOpenings(ctx context.Context) ([]model.Event, error)
	// Appointments returns booked intervals inside [from, to].
	Appointments(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// Category names the three independent fetches, for diagnostics.
type Category string

const (
	CategoryNonRecurringOpenings Category = "non_recurring_openings"
	CategoryRecurringOpenings    Category = "recurring_openings"
	CategoryAppointments         Category = "appointments"
)

// FetchIssue records a category that failed and therefore contributed no
// events. The computation itself still succeeds.
type FetchIssue struct {
	Category Category
	Err      error
}

// Service computes weekly availability. Each call builds its own schedule
// state, so concurrent callers never share buckets.
type Service struct {
	store  EventStore
	logger *slog.Logger
	gen    *slots.Generator
}

func New(store EventStore, logger *slog.Logger, slotDuration time.Duration) *Service {
	return &Service{
		store:  store,
		logger: logger,
		gen:    slots.NewGenerator(slotDuration),
	}
}

// Availabilities returns the bookable slots for the seven days starting at
// rawDate. An absent or unparseable date falls back to the current instant.
// Fetch failures degrade the affected category to empty and are reported in
// the returned issues; the week always has seven entries.
func (s *Service) Availabilities(ctx context.Context, rawDate string) (schedule.Week, []FetchIssue) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.compute")
	defer span.End()

	start := NormalizeDate(rawDate, time.Now)
	win := slots.NewWindow(start, schedule.WindowDays)
	span.SetAttributes(attribute.String("window.start", start.Format(model.DateKeyFormat)))

	builder := schedule.NewBuilder(win, s.gen)

	type fetchResult struct {
		category Category
		events   []model.Event
		err      error
	}

	results := make([]fetchResult, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		evs, err := s.store.NonRecurringOpenings(ctx, win.Start, win.End)
		results[0] = fetchResult{CategoryNonRecurringOpenings, evs, err}
	}()
	go func() {
		defer wg.Done()
		evs, err := s.store.RecurringOpenings(ctx)
		results[1] = fetchResult{CategoryRecurringOpenings, evs, err}
	}()
	go func() {
		defer wg.Done()
		evs, err := s.store.Appointments(ctx, win.Start, win.End)
		results[2] = fetchResult{CategoryAppointments, evs, err}
	}()
	wg.Wait()

	var issues []FetchIssue
	for _, res := range results {
		if res.err != nil {
			s.logger.Error("event fetch failed; category degraded to empty",
				"category", string(res.category), "err", res.err)
			issues = append(issues, FetchIssue{Category: res.category, Err: res.err})
			continue
		}
		for _, ev := range res.events {
			builder.Ingest(ev)
		}
	}

	return builder.Finalize(), issues
}

// NormalizeDate parses the requested start date and cancels its UTC offset by
// rebasing the wall-clock fields into UTC. The rebase applies to valid
// explicit dates too, so date-key comparisons stay zone-agnostic.
func NormalizeDate(raw string, now func() time.Time) time.Time {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		model.DateKeyFormat,
	}
	if raw != "" {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return stripOffset(t)
			}
		}
	}
	return stripOffset(now())
}

func stripOffset(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
