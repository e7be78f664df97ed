package m_activity

// Field name constants for the activity_records table, interleaved in products.
const (
	TableName = "activity_records"

	ProductID    = "product_id"
	Sequence     = "sequence"
	EventType    = "event_type"
	Location     = "location"
	Handler      = "handler"
	Details      = "details"
	Timestamp    = "timestamp"
	Hash         = "hash"
	PreviousHash = "previous_hash"
)

// Columns lists every column in Data order.
var Columns = []string{
	ProductID,
	Sequence,
	EventType,
	Location,
	Handler,
	Details,
	Timestamp,
	Hash,
	PreviousHash,
}
