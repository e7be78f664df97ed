package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Outbox event statuses
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusCompleted  = "completed"
	OutboxStatusFailed     = "failed"
)

// OutboxEvent represents an enriched domain event ready for persistence.
type OutboxEvent struct {
	EventID      string
	EventType    string
	AggregateID  string
	Payload      string // JSON
	Status       string
	RetryCount   int64
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// EnrichEvent converts a domain event to an outbox event with metadata.
func EnrichEvent(event domain.DomainEvent, now time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s event: %w", event.EventType(), err)
	}

	return &OutboxEvent{
		EventID:     uuid.New().String(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		Payload:     string(payload),
		Status:      OutboxStatusPending,
		CreatedAt:   domain.NormalizeTimestamp(now),
	}, nil
}

// EnrichEvents enriches every event recorded on an aggregate.
func EnrichEvents(events []domain.DomainEvent, now time.Time) ([]*OutboxEvent, error) {
	out := make([]*OutboxEvent, 0, len(events))
	for _, event := range events {
		e, err := EnrichEvent(event, now)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// OutboxRepository drives delivery of committed outbox events.
type OutboxRepository interface {
	// ClaimPending moves up to limit pending events to processing and returns
	// them oldest first. Processing events whose claim is older than lease
	// are claimed again, so a crashed dispatcher does not strand them.
	ClaimPending(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*OutboxEvent, error)

	// MarkCompleted records a successful delivery.
	MarkCompleted(ctx context.Context, eventID string, at time.Time) error

	// MarkFailed returns the event to pending, or to failed once maxRetries is reached.
	MarkFailed(ctx context.Context, eventID string, reason string, maxRetries int64) error

	// PurgeCompleted deletes completed events processed before olderThan.
	PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error)
}

// EventFilter contains filtering parameters for listing outbox events.
type EventFilter struct {
	EventType   string
	AggregateID string
	Status      string
	Limit       int
}

// EventsReadModel lists outbox events, newest first.
type EventsReadModel interface {
	ListEvents(ctx context.Context, filter *EventFilter) ([]*OutboxEvent, error)
}
