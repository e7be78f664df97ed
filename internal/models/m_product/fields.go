package m_product

// Field name constants for the products table.
// These provide type-safe field references and prevent typos.
const (
	TableName = "products"

	// FingerprintIndex is the unique secondary index on Fingerprint.
	FingerprintIndex = "products_by_fingerprint"

	ProductID      = "product_id"
	Name           = "name"
	BatchNumber    = "batch_number"
	ManufacturedAt = "manufactured_at"
	Origin         = "origin"
	Category       = "category"
	Description    = "description"
	Owner          = "owner"
	Status         = "status"
	Fingerprint    = "fingerprint"
	HeadSequence   = "head_sequence"
	HeadHash       = "head_hash"
	CreatedAt      = "created_at"
	UpdatedAt      = "updated_at"
)

// Columns lists every column in Data order.
var Columns = []string{
	ProductID,
	Name,
	BatchNumber,
	ManufacturedAt,
	Origin,
	Category,
	Description,
	Owner,
	Status,
	Fingerprint,
	HeadSequence,
	HeadHash,
	CreatedAt,
	UpdatedAt,
}
