package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/defarge/availcal/internal/model"
	"github.com/defarge/availcal/internal/slots"
)

// WindowDays is the public contract: availability always covers the next
// seven calendar days, so each weekday owns exactly one bucket per request.
const WindowDays = 7

// DayBucket collects the discretized slots of one concrete calendar day.
// Slot labels are kept as sets so duplicate contributions collapse.
type DayBucket struct {
	Date         time.Time
	DateKey      string
	openings     map[string]struct{}
	appointments map[string]struct{}
}

// Day is one finalized entry of the availability result.
type Day struct {
	Date  string
	Slots []string
}

// Week is the ordered, finalized availability of a 7-day window.
type Week []Day

// MarshalJSON emits the availability as a JSON object whose keys appear in
// chronological order, e.g. {"2020-01-01":["9:00"],...}.
func (w Week) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range w {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(day.Date)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		slotList := day.Slots
		if slotList == nil {
			slotList = []string{}
		}
		val, err := json.Marshal(slotList)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Builder assembles one request's weekly availability. It is request-scoped:
// construct, ingest, finalize, discard. Not safe for concurrent ingestion.
type Builder struct {
	window  slots.Window
	gen     *slots.Generator
	buckets [WindowDays]*DayBucket // indexed by time.Weekday
}

// NewBuilder builds the 7-bucket skeleton for the window: one bucket per
// weekday, carrying the concrete date that weekday has within this window.
func NewBuilder(win slots.Window, gen *slots.Generator) *Builder {
	b := &Builder{window: win, gen: gen}
	for shift := 0; shift < WindowDays; shift++ {
		date := win.Start.AddDate(0, 0, shift)
		b.buckets[date.Weekday()] = &DayBucket{
			Date:         date,
			DateKey:      date.Format(model.DateKeyFormat),
			openings:     map[string]struct{}{},
			appointments: map[string]struct{}{},
		}
	}
	// Seven consecutive days must hit each weekday exactly once.
	for wd, bucket := range b.buckets {
		if bucket == nil {
			panic(fmt.Sprintf("schedule: no bucket for %s in a %d-day window", time.Weekday(wd), WindowDays))
		}
	}
	return b
}

// Ingest discretizes the event and files its slot labels under the event's
// weekday. Opening slots and appointment slots land in separate sets.
func (b *Builder) Ingest(ev model.Event) {
	labels := b.gen.Generate(ev, b.window)
	if len(labels) == 0 {
		return
	}
	bucket := b.buckets[ev.Weekday]
	set := bucket.openings
	if ev.Kind == model.KindAppointment {
		set = bucket.appointments
	}
	for _, label := range labels {
		set[label] = struct{}{}
	}
}

// Finalize reduces the buckets to the per-day availability: openings minus
// appointments by exact label equality, sorted by time-of-day, days in
// ascending calendar order.
func (b *Builder) Finalize() Week {
	ordered := make([]*DayBucket, 0, WindowDays)
	for _, bucket := range b.buckets {
		ordered = append(ordered, bucket)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	week := make(Week, 0, WindowDays)
	for _, bucket := range ordered {
		available := make([]string, 0, len(bucket.openings))
		for label := range bucket.openings {
			if _, booked := bucket.appointments[label]; !booked {
				available = append(available, label)
			}
		}
		sortByClock(available)
		week = append(week, Day{Date: bucket.DateKey, Slots: available})
	}
	return week
}

func sortByClock(labels []string) {
	sort.Slice(labels, func(i, j int) bool {
		a, errA := slots.ParseClock(labels[i])
		c, errC := slots.ParseClock(labels[j])
		if errA != nil || errC != nil {
			return labels[i] < labels[j]
		}
		return a < c
	})
}
