package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/defarge/availcal/internal/availability"
	"github.com/defarge/availcal/internal/cache"
	"github.com/defarge/availcal/internal/schedule"
)

// Computer is the availability engine as the HTTP layer sees it.
type Computer interface {
	Availabilities(ctx context.Context, rawDate string) (schedule.Week, []availability.FetchIssue)
}

type AvailabilityHandler struct {
	computer Computer
	cache    *cache.AvailabilityCache
	logger   *slog.Logger
}

func NewAvailabilityHandler(computer Computer, availCache *cache.AvailabilityCache, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		computer: computer,
		cache:    availCache,
		logger:   logger,
	}
}

// Get serves GET /api/v1/availabilities?date=YYYY-MM-DD. The response is a
// JSON object of seven chronologically ordered date keys, each mapped to the
// sorted bookable slot labels of that day. Degraded fetch categories are
// logged but the response is still 200 with whatever could be computed.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawDate := strings.TrimSpace(r.URL.Query().Get("date"))
	windowStart := availability.NormalizeDate(rawDate, time.Now)

	if payload, ok := h.cache.Get(r.Context(), windowStart); ok {
		writeJSON(w, payload)
		return
	}

	week, issues := h.computer.Availabilities(r.Context(), rawDate)

	payload, err := json.Marshal(week)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}

	// Partial results must not be cached; the next request should retry the
	// failed categories.
	if len(issues) == 0 {
		h.cache.Set(r.Context(), windowStart, payload)
	}

	writeJSON(w, payload)
}

func writeJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
