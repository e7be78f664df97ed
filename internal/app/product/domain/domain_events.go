package domain

import "time"

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventType() string
	AggregateID() string
}

// ProductRegisteredEvent is emitted when a product and its genesis record are created.
type ProductRegisteredEvent struct {
	ProductID      string    `json:"product_id"`
	Name           string    `json:"name"`
	BatchNumber    string    `json:"batch_number"`
	ManufacturedAt time.Time `json:"manufactured_at"`
	Origin         string    `json:"origin"`
	Category       string    `json:"category"`
	Owner          string    `json:"owner"`
	Fingerprint    string    `json:"fingerprint"`
	GenesisHash    string    `json:"genesis_hash"`
	RegisteredAt   time.Time `json:"registered_at"`
}

func (e *ProductRegisteredEvent) EventType() string {
	return "product.registered"
}

func (e *ProductRegisteredEvent) AggregateID() string {
	return e.ProductID
}

// ProductStatusChangedEvent is emitted when a status transition is appended to the chain.
type ProductStatusChangedEvent struct {
	ProductID    string    `json:"product_id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Sequence     int64     `json:"sequence"`
	RecordHash   string    `json:"record_hash"`
	ActivityType string    `json:"activity_type"`
	Location     string    `json:"location"`
	Handler      string    `json:"handler"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e *ProductStatusChangedEvent) EventType() string {
	return "product.status_changed"
}

func (e *ProductStatusChangedEvent) AggregateID() string {
	return e.ProductID
}

// ActivityRecordedEvent is emitted when a custom activity is appended to the chain.
type ActivityRecordedEvent struct {
	ProductID    string    `json:"product_id"`
	Sequence     int64     `json:"sequence"`
	RecordHash   string    `json:"record_hash"`
	ActivityType string    `json:"activity_type"`
	Location     string    `json:"location"`
	Handler      string    `json:"handler"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e *ActivityRecordedEvent) EventType() string {
	return "product.activity_recorded"
}

func (e *ActivityRecordedEvent) AggregateID() string {
	return e.ProductID
}
