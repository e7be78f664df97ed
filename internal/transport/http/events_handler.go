package http

import (
	"net/http"
	"strconv"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_events"
	"github.com/light-bringer/supplytrace-ledger/internal/transport/grpc/ledger"
)

// EventsHandler handles HTTP requests for outbox events.
type EventsHandler struct {
	listEvents *list_events.Query
}

// NewEventsHandler creates a new HTTP events handler.
func NewEventsHandler(listEvents *list_events.Query) *EventsHandler {
	return &EventsHandler{
		listEvents: listEvents,
	}
}

// ListEventsResponse represents the HTTP response for listing events.
type ListEventsResponse struct {
	Events     []ledger.EventView `json:"events"`
	TotalCount int                `json:"total_count"`
}

// ServeHTTP handles GET /api/v1/events requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse query parameters
	query := r.URL.Query()
	req := &list_events.Request{
		EventType:   query.Get("event_type"),
		AggregateID: query.Get("aggregate_id"),
		Status:      query.Get("status"),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			req.Limit = limit
		}
	}

	events, err := h.listEvents.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]ledger.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, ledger.NewEventView(e))
	}

	writeJSON(w, http.StatusOK, ListEventsResponse{
		Events:     views,
		TotalCount: len(views),
	})
}
