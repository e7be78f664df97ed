package repo

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_outbox"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/query"
)

// EventsReadModel implements the EventsReadModel interface for Spanner.
type EventsReadModel struct {
	client *spanner.Client
}

// NewEventsReadModel creates a new EventsReadModel.
func NewEventsReadModel(client *spanner.Client) *EventsReadModel {
	return &EventsReadModel{
		client: client,
	}
}

// ListEvents retrieves events from the outbox_events table with filtering.
func (r *EventsReadModel) ListEvents(ctx context.Context, filter *contracts.EventFilter) ([]*contracts.OutboxEvent, error) {
	q := query.From(m_outbox.TableName).Select(m_outbox.Columns...)

	if filter.EventType != "" {
		q = q.Where(query.Eq(m_outbox.EventType, filter.EventType))
	}

	if filter.AggregateID != "" {
		q = q.Where(query.Eq(m_outbox.AggregateID, filter.AggregateID))
	}

	if filter.Status != "" {
		q = q.Where(query.Eq(m_outbox.Status, filter.Status))
	}

	q = q.OrderBy(m_outbox.CreatedAt, query.Desc).OrderBy(m_outbox.EventID, query.Desc)
	if filter.Limit > 0 {
		q = q.Limit(int64(filter.Limit))
	}

	events, err := collectEvents(r.client.Single().Query(ctx, q.Build()))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", mapErr(err))
	}
	return events, nil
}
