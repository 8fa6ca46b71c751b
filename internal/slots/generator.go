package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/defarge/availcal/internal/model"
)

// DefaultDuration is the grid step every interval is discretized onto.
const DefaultDuration = 30 * time.Minute

// Window is the 7-day range a single availability request covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow anchors a window of the given number of days at start.
func NewWindow(start time.Time, days int) Window {
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}

// Generator discretizes one event into slot-start labels on a fixed grid.
type Generator struct {
	duration time.Duration
}

func NewGenerator(duration time.Duration) *Generator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Generator{duration: duration}
}

// Generate returns the ordered slot-start labels the event contributes to the
// window, formatted "H:mm" with no leading zero on the hour.
//
// Weekly-recurring events are fast-forwarded onto the window's first day when
// the query lands on the event's weekday at a time-of-day strictly later than
// the event's start; the event keeps its stored duration. In every other case
// the stored times are used as-is and weekday bucketing supplies the date.
func (g *Generator) Generate(ev model.Event, win Window) []string {
	from := ev.StartsAt
	to := ev.EndsAt

	if ev.WeeklyRecurring {
		sameWeekday := win.Start.Weekday() == ev.Weekday
		if sameWeekday && minuteOfDay(win.Start) > minuteOfDay(from) {
			from = win.Start
			to = time.Date(win.Start.Year(), win.Start.Month(), win.Start.Day(),
				to.Hour(), to.Minute(), 0, 0, win.Start.Location())
		}
	}

	if !from.Before(to) {
		return nil
	}

	var out []string
	for s := from; ; s = s.Add(g.duration) {
		// A slot counts only if one minute past its start still lies inside
		// the closed interval [from, to]. Intervals are contiguous, so the
		// first failure ends the scan.
		probe := s.Add(time.Minute)
		if probe.Before(from) || probe.After(to) {
			break
		}
		out = append(out, FormatClock(s))
	}
	return out
}

// FormatClock renders a slot-start label, e.g. "9:00" or "14:30".
func FormatClock(t time.Time) string {
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}

// ParseClock converts a slot label back to minutes since midnight, for
// time-of-day ordering of labels.
func ParseClock(label string) (int, error) {
	h, m, ok := strings.Cut(label, ":")
	if !ok {
		return 0, fmt.Errorf("malformed slot label %q", label)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("malformed slot hour %q", label)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("malformed slot minute %q", label)
	}
	return hour*60 + minute, nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
