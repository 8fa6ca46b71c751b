package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/defarge/availcal/internal/model"
	"github.com/defarge/availcal/internal/schedule"
)

// fakeStore mimics the SQL query forms of the event repository, including the
// range filters, so window boundary behavior is exercised end to end.
type fakeStore struct {
	events []model.Event

	failNonRecurring bool
	failRecurring    bool
	failAppointments bool
}

var errStore = errors.New("store unavailable")

func (s *fakeStore) NonRecurringOpenings(_ context.Context, from, to time.Time) ([]model.Event, error) {
	if s.failNonRecurring {
		return nil, errStore
	}
	var out []model.Event
	for _, ev := range s.events {
		if ev.Kind != model.KindOpening || ev.WeeklyRecurring {
			continue
		}
		if !ev.StartsAt.Before(from) && !ev.EndsAt.After(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) RecurringOpenings(_ context.Context) ([]model.Event, error) {
	if s.failRecurring {
		return nil, errStore
	}
	var out []model.Event
	for _, ev := range s.events {
		if ev.Kind == model.KindOpening && ev.WeeklyRecurring {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) Appointments(_ context.Context, from, to time.Time) ([]model.Event, error) {
	if s.failAppointments {
		return nil, errStore
	}
	var out []model.Event
	for _, ev := range s.events {
		if ev.Kind != model.KindAppointment {
			continue
		}
		if !ev.StartsAt.Before(from) && !ev.EndsAt.After(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return parsed
}

func event(t *testing.T, kind model.Kind, starts, ends string, recurring bool) model.Event {
	t.Helper()
	ev, err := model.NewEvent(kind, at(t, starts), at(t, ends), recurring)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return ev
}

func newService(store EventStore) *Service {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), 30*time.Minute)
}

func daySlots(t *testing.T, week schedule.Week, date string) []string {
	t.Helper()
	for _, day := range week {
		if day.Date == date {
			return day.Slots
		}
	}
	t.Fatalf("week has no entry for %s: %v", date, week)
	return nil
}

func TestAvailabilities_SevenConsecutiveDays(t *testing.T) {
	svc := newService(&fakeStore{})

	week, issues := svc.Availabilities(context.Background(), "2020-01-01")
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(week) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week))
	}
	for i, day := range week {
		want := time.Date(2020, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(model.DateKeyFormat)
		if day.Date != want {
			t.Fatalf("day %d: expected %s, got %s", i, want, day.Date)
		}
		if len(day.Slots) != 0 {
			t.Fatalf("day %s: expected empty, got %v", day.Date, day.Slots)
		}
	}
}

func TestAvailabilities_OpeningsMinusAppointments(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2020-01-01 09:00", "2020-01-01 10:00", false),
		event(t, model.KindAppointment, "2020-01-01 09:00", "2020-01-01 09:30", false),
	}})

	week, _ := svc.Availabilities(context.Background(), "2020-01-01")
	got := daySlots(t, week, "2020-01-01")
	if !reflect.DeepEqual(got, []string{"9:30"}) {
		t.Fatalf("expected [9:30], got %v", got)
	}
}

func TestAvailabilities_SeveralOpeningsSameDay(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2020-01-01 11:00", "2020-01-01 12:00", false),
		event(t, model.KindOpening, "2020-01-01 14:00", "2020-01-01 15:00", false),
	}})

	week, _ := svc.Availabilities(context.Background(), "2020-01-01")
	got := daySlots(t, week, "2020-01-01")
	want := []string{"11:00", "11:30", "14:00", "14:30"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAvailabilities_RecurringAppliesToLaterWeek(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2020-01-01 09:00", "2020-01-01 09:30", true),
	}})

	week, _ := svc.Availabilities(context.Background(), "2020-01-08")
	got := daySlots(t, week, "2020-01-08")
	if !reflect.DeepEqual(got, []string{"9:00"}) {
		t.Fatalf("expected [9:00], got %v", got)
	}
}

func TestAvailabilities_NonRecurringDoesNotApplyToLaterWeek(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2020-01-01 09:00", "2020-01-01 09:30", false),
	}})

	week, _ := svc.Availabilities(context.Background(), "2020-01-08")
	if got := daySlots(t, week, "2020-01-08"); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestAvailabilities_QueryAtOpeningEnd(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2021-10-08 18:00", "2021-10-08 18:30", false),
	}})

	// The window starts at the opening's end; the range query excludes it.
	week, _ := svc.Availabilities(context.Background(), "2021-10-08 18:30")
	if got := daySlots(t, week, "2021-10-08"); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestAvailabilities_QueryInsideOpeningInterior(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2021-10-08 18:00", "2021-10-08 18:30", false),
	}})

	week, _ := svc.Availabilities(context.Background(), "2021-10-08 18:15")
	if got := daySlots(t, week, "2021-10-08"); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestAvailabilities_QueryAtOpeningStart(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2021-10-08 09:00", "2021-10-08 09:30", false),
	}})

	week, _ := svc.Availabilities(context.Background(), "2021-10-08 09:00")
	got := daySlots(t, week, "2021-10-08")
	if !reflect.DeepEqual(got, []string{"9:00"}) {
		t.Fatalf("expected [9:00], got %v", got)
	}
}

func TestAvailabilities_MixedIntersections(t *testing.T) {
	svc := newService(&fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2021-10-03 09:00", "2021-10-03 10:00", false),
		event(t, model.KindOpening, "2021-10-03 09:30", "2021-10-03 11:00", false),
		event(t, model.KindAppointment, "2021-10-03 09:30", "2021-10-03 11:30", false),
		event(t, model.KindAppointment, "2021-10-03 10:30", "2021-10-03 11:00", false),
	}})

	week, _ := svc.Availabilities(context.Background(), "2021-10-03 06:00")
	got := daySlots(t, week, "2021-10-03")
	if !reflect.DeepEqual(got, []string{"9:00"}) {
		t.Fatalf("expected [9:00], got %v", got)
	}
}

func TestAvailabilities_CategoryFailureDegrades(t *testing.T) {
	svc := newService(&fakeStore{
		events: []model.Event{
			event(t, model.KindOpening, "2020-01-01 09:00", "2020-01-01 10:00", false),
			event(t, model.KindAppointment, "2020-01-01 09:00", "2020-01-01 09:30", false),
		},
		failAppointments: true,
	})

	week, issues := svc.Availabilities(context.Background(), "2020-01-01")
	if len(issues) != 1 || issues[0].Category != CategoryAppointments {
		t.Fatalf("expected one appointments issue, got %v", issues)
	}
	// Appointments degraded to empty, so nothing is subtracted.
	got := daySlots(t, week, "2020-01-01")
	if !reflect.DeepEqual(got, []string{"9:00", "9:30"}) {
		t.Fatalf("expected [9:00 9:30], got %v", got)
	}
}

func TestAvailabilities_TotalFetchFailure(t *testing.T) {
	svc := newService(&fakeStore{
		failNonRecurring: true,
		failRecurring:    true,
		failAppointments: true,
	})

	week, issues := svc.Availabilities(context.Background(), "2020-01-01")
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(issues))
	}
	if len(week) != 7 {
		t.Fatalf("expected 7 days even under total failure, got %d", len(week))
	}
	for _, day := range week {
		if len(day.Slots) != 0 {
			t.Fatalf("day %s: expected empty, got %v", day.Date, day.Slots)
		}
	}
}

func TestAvailabilities_Idempotent(t *testing.T) {
	store := &fakeStore{events: []model.Event{
		event(t, model.KindOpening, "2021-10-03 09:00", "2021-10-03 10:00", false),
		event(t, model.KindOpening, "2021-09-26 08:30", "2021-09-26 09:00", true),
		event(t, model.KindAppointment, "2021-10-03 09:00", "2021-10-03 09:30", false),
	}}
	svc := newService(store)

	first, _ := svc.Availabilities(context.Background(), "2021-10-01 06:00")
	second, _ := svc.Availabilities(context.Background(), "2021-10-01 06:00")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results:\nfirst  %v\nsecond %v", first, second)
	}
}

func TestNormalizeDate_ValidFormats(t *testing.T) {
	now := func() time.Time { return time.Date(2022, 5, 5, 12, 0, 0, 0, time.UTC) }

	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2020-01-01", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2020-01-01 09:00", time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)},
		{"2020-01-01T09:00", time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)},
		// Offsets are cancelled: the wall clock survives, the zone does not.
		{"2020-01-01T09:00:00+03:00", time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := NormalizeDate(tc.raw, now)
		if !got.Equal(tc.want) {
			t.Fatalf("NormalizeDate(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeDate_InvalidFallsBackToNow(t *testing.T) {
	now := func() time.Time { return time.Date(2022, 5, 5, 12, 30, 0, 0, time.UTC) }

	for _, raw := range []string{"", "not-a-date", "01/02/2020"} {
		got := NormalizeDate(raw, now)
		if !got.Equal(time.Date(2022, 5, 5, 12, 30, 0, 0, time.UTC)) {
			t.Fatalf("NormalizeDate(%q) = %v, want fallback to now", raw, got)
		}
	}
}
