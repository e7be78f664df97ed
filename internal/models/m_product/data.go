package m_product

import (
	"time"
)

// Data represents the database model for the products table.
type Data struct {
	ProductID      string    `spanner:"product_id"`
	Name           string    `spanner:"name"`
	BatchNumber    string    `spanner:"batch_number"`
	ManufacturedAt time.Time `spanner:"manufactured_at"`
	Origin         string    `spanner:"origin"`
	Category       string    `spanner:"category"`
	Description    string    `spanner:"description"`
	Owner          string    `spanner:"owner"`
	Status         string    `spanner:"status"`
	Fingerprint    string    `spanner:"fingerprint"`
	HeadSequence   int64     `spanner:"head_sequence"`
	HeadHash       string    `spanner:"head_hash"`
	CreatedAt      time.Time `spanner:"created_at"`
	UpdatedAt      time.Time `spanner:"updated_at"`
}
