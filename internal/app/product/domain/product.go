package domain

import (
	"fmt"
	"time"
)

// Field names for change tracking
const (
	FieldStatus    = "status"
	FieldHead      = "head"
	FieldUpdatedAt = "updated_at"
)

// Product is the aggregate root of a tracked batch or item.
// Registration fields and the fingerprint never change after NewProduct;
// status, chain head and updatedAt change through ApplyTransition and RecordActivity.
type Product struct {
	id             string
	name           string
	batchNumber    string
	manufacturedAt time.Time
	origin         string
	category       string
	description    string
	owner          string
	status         ProductStatus
	fingerprint    string
	head           ChainHead
	createdAt      time.Time
	updatedAt      time.Time

	// Change tracking for optimized repository updates
	changes *ChangeTracker

	// Domain events to be published
	events []DomainEvent
}

// ProductState is the persisted form of a Product.
type ProductState struct {
	ID             string
	Name           string
	BatchNumber    string
	ManufacturedAt time.Time
	Origin         string
	Category       string
	Description    string
	Owner          string
	Status         ProductStatus
	Fingerprint    string
	Head           ChainHead
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewProduct registers a product and mints its genesis record.
func NewProduct(data RegistrationData, description string, now time.Time) (*Product, *ActivityRecord, error) {
	if err := data.Validate(); err != nil {
		return nil, nil, err
	}

	data = data.Normalized()
	now = NormalizeTimestamp(now)

	genesis, err := Link(nil, data.ProductID, ActivityEvent{
		Type: EventManufactured,
		ActivityDetails: ActivityDetails{
			Location: data.Origin,
			Handler:  data.Owner,
			Details:  fmt.Sprintf("batch %s registered", data.BatchNumber),
		},
	}, now)
	if err != nil {
		return nil, nil, err
	}

	p := &Product{
		id:             data.ProductID,
		name:           data.Name,
		batchNumber:    data.BatchNumber,
		manufacturedAt: data.ManufacturedAt,
		origin:         data.Origin,
		category:       data.Category,
		description:    description,
		owner:          data.Owner,
		status:         StatusManufactured,
		fingerprint:    Fingerprint(data),
		head:           genesis.Head(),
		createdAt:      now,
		updatedAt:      now,
		changes:        NewChangeTracker(),
		events:         make([]DomainEvent, 0),
	}

	p.recordEvent(&ProductRegisteredEvent{
		ProductID:      p.id,
		Name:           p.name,
		BatchNumber:    p.batchNumber,
		ManufacturedAt: p.manufacturedAt,
		Origin:         p.origin,
		Category:       p.category,
		Owner:          p.owner,
		Fingerprint:    p.fingerprint,
		GenesisHash:    genesis.Hash,
		RegisteredAt:   now,
	})

	return p, genesis, nil
}

// ReconstructProduct reconstitutes a Product from storage.
func ReconstructProduct(s ProductState) *Product {
	return &Product{
		id:             s.ID,
		name:           s.Name,
		batchNumber:    s.BatchNumber,
		manufacturedAt: s.ManufacturedAt,
		origin:         s.Origin,
		category:       s.Category,
		description:    s.Description,
		owner:          s.Owner,
		status:         s.Status,
		fingerprint:    s.Fingerprint,
		head:           s.Head,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
		changes:        NewChangeTracker(),
		events:         make([]DomainEvent, 0),
	}
}

// Getters
func (p *Product) ID() string                  { return p.id }
func (p *Product) Name() string                { return p.name }
func (p *Product) BatchNumber() string         { return p.batchNumber }
func (p *Product) ManufacturedAt() time.Time   { return p.manufacturedAt }
func (p *Product) Origin() string              { return p.origin }
func (p *Product) Category() string            { return p.category }
func (p *Product) Description() string         { return p.description }
func (p *Product) Owner() string               { return p.owner }
func (p *Product) Status() ProductStatus       { return p.status }
func (p *Product) Fingerprint() string         { return p.fingerprint }
func (p *Product) Head() ChainHead             { return p.head }
func (p *Product) CreatedAt() time.Time        { return p.createdAt }
func (p *Product) UpdatedAt() time.Time        { return p.updatedAt }
func (p *Product) Changes() *ChangeTracker     { return p.changes }
func (p *Product) DomainEvents() []DomainEvent { return p.events }

// State returns the persisted form of the product.
func (p *Product) State() ProductState {
	return ProductState{
		ID:             p.id,
		Name:           p.name,
		BatchNumber:    p.batchNumber,
		ManufacturedAt: p.manufacturedAt,
		Origin:         p.origin,
		Category:       p.category,
		Description:    p.description,
		Owner:          p.owner,
		Status:         p.status,
		Fingerprint:    p.fingerprint,
		Head:           p.head,
		CreatedAt:      p.createdAt,
		UpdatedAt:      p.updatedAt,
	}
}

// RegistrationData returns the immutable fields the fingerprint covers.
func (p *Product) RegistrationData() RegistrationData {
	return RegistrationData{
		ProductID:      p.id,
		Name:           p.name,
		BatchNumber:    p.batchNumber,
		ManufacturedAt: p.manufacturedAt,
		Origin:         p.origin,
		Category:       p.category,
		Owner:          p.owner,
	}
}

// ApplyTransition moves the product to status to and links the resulting
// activity onto head. On error nothing is mutated.
func (p *Product) ApplyTransition(to ProductStatus, details ActivityDetails, head *ActivityRecord, now time.Time) (*ActivityRecord, error) {
	if !p.status.CanTransitionTo(to) {
		return nil, &InvalidTransitionError{From: p.status, To: to}
	}

	rec, err := p.link(ActivityEvent{Type: EventTypeForStatus(to), ActivityDetails: details}, head, now)
	if err != nil {
		return nil, err
	}

	from := p.status
	p.status = to
	p.changes.MarkDirty(FieldStatus)
	p.advance(rec)

	p.recordEvent(&ProductStatusChangedEvent{
		ProductID:    p.id,
		FromStatus:   string(from),
		ToStatus:     string(to),
		Sequence:     rec.Sequence,
		RecordHash:   rec.Hash,
		ActivityType: string(rec.EventType),
		Location:     rec.Location,
		Handler:      rec.Handler,
		OccurredAt:   rec.Timestamp,
	})

	return rec, nil
}

// RecordActivity links a custom activity onto head without changing status.
func (p *Product) RecordActivity(eventType EventType, details ActivityDetails, head *ActivityRecord, now time.Time) (*ActivityRecord, error) {
	if err := ValidateCustomEventType(eventType); err != nil {
		return nil, err
	}

	rec, err := p.link(ActivityEvent{Type: eventType, ActivityDetails: details}, head, now)
	if err != nil {
		return nil, err
	}

	p.advance(rec)

	p.recordEvent(&ActivityRecordedEvent{
		ProductID:    p.id,
		Sequence:     rec.Sequence,
		RecordHash:   rec.Hash,
		ActivityType: string(rec.EventType),
		Location:     rec.Location,
		Handler:      rec.Handler,
		OccurredAt:   rec.Timestamp,
	})

	return rec, nil
}

// link checks that head is the record the product points at, then links ev onto it.
func (p *Product) link(ev ActivityEvent, head *ActivityRecord, now time.Time) (*ActivityRecord, error) {
	if head == nil {
		return nil, &ChainCorruptError{ProductID: p.id, Sequence: p.head.Sequence, Reason: "chain has no records"}
	}

	switch {
	case head.Sequence > p.head.Sequence:
		return nil, fmt.Errorf("%w: chain head at sequence %d, product loaded at %d",
			ErrConcurrentModification, head.Sequence, p.head.Sequence)
	case head.Head() != p.head:
		return nil, &ChainCorruptError{
			ProductID: p.id,
			Sequence:  head.Sequence,
			Reason:    fmt.Sprintf("stored head does not match product head (sequence %d)", p.head.Sequence),
		}
	}

	return Link(head, p.id, ev, now)
}

func (p *Product) advance(rec *ActivityRecord) {
	p.head = rec.Head()
	p.updatedAt = rec.Timestamp
	p.changes.MarkDirty(FieldHead)
	p.changes.MarkDirty(FieldUpdatedAt)
}

// IsDelivered returns true if the product reached its terminal status.
func (p *Product) IsDelivered() bool {
	return p.status == StatusDelivered
}

// recordEvent adds a domain event to the list of events.
func (p *Product) recordEvent(event DomainEvent) {
	p.events = append(p.events, event)
}

// ClearEvents clears all recorded domain events (called after publishing).
func (p *Product) ClearEvents() {
	p.events = make([]DomainEvent, 0)
}
