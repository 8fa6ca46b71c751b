package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/defarge/availcal/internal/cache"
	"github.com/defarge/availcal/internal/model"
)

// EventStore is the write/list side of the events table used by this handler.
type EventStore interface {
	Insert(ctx context.Context, ev model.Event) error
	ListRange(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

type EventsHandler struct {
	store  EventStore
	cache  *cache.AvailabilityCache
	logger *slog.Logger
}

func NewEventsHandler(store EventStore, availCache *cache.AvailabilityCache, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{store: store, cache: availCache, logger: logger}
}

type createEventRequest struct {
	Kind            string `json:"kind"`
	StartsAt        string `json:"starts_at"`
	EndsAt          string `json:"ends_at"`
	WeeklyRecurring bool   `json:"weekly_recurring"`
}

type eventItem struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	StartsAt        string `json:"starts_at"`
	EndsAt          string `json:"ends_at"`
	WeeklyRecurring bool   `json:"weekly_recurring"`
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartsAt))
	if err != nil {
		http.Error(w, "invalid starts_at", http.StatusBadRequest)
		return
	}
	endsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndsAt))
	if err != nil {
		http.Error(w, "invalid ends_at", http.StatusBadRequest)
		return
	}
	if !endsAt.After(startsAt) {
		http.Error(w, "ends_at must be after starts_at", http.StatusBadRequest)
		return
	}

	ev, err := model.NewEvent(model.Kind(strings.TrimSpace(req.Kind)), startsAt.UTC(), endsAt.UTC(), req.WeeklyRecurring)
	if err != nil {
		if errors.Is(err, model.ErrInvalidKind) || errors.Is(err, model.ErrRecurringAppointment) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.store.Insert(ctx, ev); err != nil {
		http.Error(w, "failed to create event", http.StatusInternalServerError)
		return
	}

	if ev.WeeklyRecurring {
		h.cache.Flush(ctx)
	} else {
		h.cache.InvalidateAround(ctx, ev.StartsAt)
	}

	body, err := json.Marshal(toEventItem(ev))
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to := from.AddDate(0, 0, 7)
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err = parseDateParam(raw)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	events, err := h.store.ListRange(r.Context(), from, to)
	if err != nil {
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	items := make([]eventItem, 0, len(events))
	for _, ev := range events {
		items = append(items, toEventItem(ev))
	}
	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(model.DateKeyFormat, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func toEventItem(ev model.Event) eventItem {
	return eventItem{
		ID:              ev.ID.String(),
		Kind:            string(ev.Kind),
		StartsAt:        ev.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:          ev.EndsAt.UTC().Format(time.RFC3339),
		WeeklyRecurring: ev.WeeklyRecurring,
	}
}
