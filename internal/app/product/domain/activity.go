package domain

import (
	"fmt"
	"regexp"
	"time"
)

// EventType classifies an activity record.
type EventType string

// Lifecycle event types. Any other EventType is a custom activity.
const (
	EventManufactured EventType = "manufactured"
	EventShipped      EventType = "shipped"
	EventStored       EventType = "stored"
	EventDelivered    EventType = "delivered"
)

var customEventType = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// EventTypeForStatus returns the event type recorded when a product enters status.
func EventTypeForStatus(status ProductStatus) EventType {
	switch status {
	case StatusInTransit:
		return EventShipped
	case StatusStored:
		return EventStored
	case StatusDelivered:
		return EventDelivered
	default:
		return EventManufactured
	}
}

// IsLifecycle reports whether t is reserved for status transitions.
func (t EventType) IsLifecycle() bool {
	switch t {
	case EventManufactured, EventShipped, EventStored, EventDelivered:
		return true
	}
	return false
}

// ValidateCustomEventType checks that t can be used for a custom activity.
func ValidateCustomEventType(t EventType) error {
	if t.IsLifecycle() {
		return fmt.Errorf("%w: %q is reserved for status transitions", ErrInvalidEventType, t)
	}
	if !customEventType.MatchString(string(t)) {
		return fmt.Errorf("%w: %q must be a lowercase slug", ErrInvalidEventType, t)
	}
	return nil
}

// ActivityDetails is the caller-supplied payload of an activity.
type ActivityDetails struct {
	Location string
	Handler  string
	Details  string
}

// ActivityEvent is an activity waiting to be linked into a chain.
type ActivityEvent struct {
	Type EventType
	ActivityDetails
}

// ChainHead identifies the last record of a chain.
type ChainHead struct {
	Sequence int64  `json:"sequence"`
	Hash     string `json:"hash"`
}

// ActivityRecord is one immutable entry of a product's activity chain.
type ActivityRecord struct {
	Sequence     int64     `json:"sequence"`
	ProductID    string    `json:"product_id"`
	EventType    EventType `json:"event_type"`
	Location     string    `json:"location"`
	Handler      string    `json:"handler"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
	Hash         string    `json:"hash"`
	PreviousHash string    `json:"previous_hash"`
}

// ComputeHash recomputes the record hash from the record's own fields.
// Field order: product_id, sequence, event_type, location, handler, details,
// timestamp, previous_hash.
func (r *ActivityRecord) ComputeHash() string {
	c := newCanonicalHasher()
	c.writeString(r.ProductID)
	c.writeInt(r.Sequence)
	c.writeString(string(r.EventType))
	c.writeString(r.Location)
	c.writeString(r.Handler)
	c.writeString(r.Details)
	c.writeTime(r.Timestamp)
	c.writeString(r.PreviousHash)
	return c.sum()
}

// HashValid reports whether the stored hash matches the record's fields.
func (r *ActivityRecord) HashValid() bool {
	return r.Hash == r.ComputeHash()
}

// IsGenesis reports whether r is the first record of its chain.
func (r *ActivityRecord) IsGenesis() bool {
	return r.Sequence == 0
}

// Head returns the chain head that r represents once appended.
func (r *ActivityRecord) Head() ChainHead {
	return ChainHead{Sequence: r.Sequence, Hash: r.Hash}
}

// Copy returns a detached copy of r.
func (r *ActivityRecord) Copy() *ActivityRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
