package m_activity

import (
	"cloud.google.com/go/spanner"
)

// Model provides a facade for type-safe operations on the activity_records table.
// Records are append-only, so there is no update or delete mutation.
type Model struct{}

// NewModel creates a new Model instance.
func NewModel() *Model {
	return &Model{}
}

// InsertMut creates a Spanner mutation for appending a record. The primary
// key (product_id, sequence) rejects a second record at the same sequence.
func (m *Model) InsertMut(data *Data) *spanner.Mutation {
	return spanner.Insert(
		TableName,
		Columns,
		[]interface{}{
			data.ProductID,
			data.Sequence,
			data.EventType,
			data.Location,
			data.Handler,
			data.Details,
			data.Timestamp,
			data.Hash,
			data.PreviousHash,
		},
	)
}

// Key returns the primary key of a record.
func Key(productID string, sequence int64) spanner.Key {
	return spanner.Key{productID, sequence}
}
