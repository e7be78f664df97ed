package ledger

import (
	"encoding/json"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
)

// toStruct converts any JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}

// EventView is the wire shape of an outbox event.
type EventView struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	AggregateID  string          `json:"aggregate_id"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	RetryCount   int64           `json:"retry_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// NewEventView converts an outbox event. Payloads that are not JSON are
// carried as a JSON string.
func NewEventView(e *contracts.OutboxEvent) EventView {
	payload := json.RawMessage(e.Payload)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(e.Payload)
		payload = quoted
	}
	return EventView{
		EventID:      e.EventID,
		EventType:    e.EventType,
		AggregateID:  e.AggregateID,
		Payload:      payload,
		Status:       e.Status,
		RetryCount:   e.RetryCount,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		ProcessedAt:  e.ProcessedAt,
	}
}
