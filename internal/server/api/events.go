package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/nidra/internal/store"
)

// DefaultEventLimit caps GET /api/events when no limit is given.
const DefaultEventLimit = 100

// EventHandler serves the persisted alert log.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates a new EventHandler with the given store.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

// ServeHTTP routes /api/events and /api/events/{id}.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/events")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.prune(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.get(w, r, path)
}

type eventResponse struct {
	ID          string  `json:"id"`
	WindowStart string  `json:"window_start"`
	TriggeredAt string  `json:"triggered_at"`
	ClosedMs    int64   `json:"closed_ms"`
	AvgEAR      float64 `json:"avg_ear"`
	Model       string  `json:"model"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
	Total  int             `json:"total"`
}

type pruneResponse struct {
	Removed int64 `json:"removed"`
}

func toEventResponse(e *store.AlertEvent) eventResponse {
	return eventResponse{
		ID:          e.ID,
		WindowStart: formatTime(e.WindowStart),
		TriggeredAt: formatTime(e.TriggeredAt),
		ClosedMs:    e.Closed.Milliseconds(),
		AvgEAR:      e.AvgEAR,
		Model:       e.Model,
	}
}

// list handles GET /api/events?limit=N, newest first.
func (h *EventHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := h.store.Events().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	total, err := h.store.Events().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}

	response := listEventsResponse{
		Events: make([]eventResponse, 0, len(events)),
		Total:  total,
	}
	for _, e := range events {
		response.Events = append(response.Events, toEventResponse(e))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/events/{id}.
func (h *EventHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id")
		return
	}

	e, err := h.store.Events().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(e))
}

// prune handles DELETE /api/events?before=RFC3339.
func (h *EventHandler) prune(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("before")
	if v == "" {
		writeError(w, http.StatusBadRequest, "before is required")
		return
	}
	before, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
		return
	}

	removed, err := h.store.Events().DeleteBefore(before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to prune events")
		return
	}

	writeJSON(w, http.StatusOK, pruneResponse{Removed: removed})
}
