package list_events

import (
	"context"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
)

// Request contains filtering parameters for listing events.
type Request struct {
	EventType   string // Filter by event type (e.g., "product.registered")
	AggregateID string // Filter by aggregate ID
	Status      string // Filter by status ("pending", "processing", "completed", "failed")
	Limit       int    // Max number of events to return (default: 100)
}

// Query handles the list events query use case.
type Query struct {
	readModel contracts.EventsReadModel
}

// NewQuery creates a new list events query.
func NewQuery(readModel contracts.EventsReadModel) *Query {
	return &Query{
		readModel: readModel,
	}
}

// Execute retrieves a list of events with filtering.
func (q *Query) Execute(ctx context.Context, req *Request) ([]*contracts.OutboxEvent, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}

	return q.readModel.ListEvents(ctx, &contracts.EventFilter{
		EventType:   req.EventType,
		AggregateID: req.AggregateID,
		Status:      req.Status,
		Limit:       limit,
	})
}
