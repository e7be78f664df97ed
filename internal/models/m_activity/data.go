package m_activity

import (
	"time"
)

// Data represents the database model for the activity_records table.
type Data struct {
	ProductID    string    `spanner:"product_id"`
	Sequence     int64     `spanner:"sequence"`
	EventType    string    `spanner:"event_type"`
	Location     string    `spanner:"location"`
	Handler      string    `spanner:"handler"`
	Details      string    `spanner:"details"`
	Timestamp    time.Time `spanner:"timestamp"`
	Hash         string    `spanner:"hash"`
	PreviousHash string    `spanner:"previous_hash"`
}
