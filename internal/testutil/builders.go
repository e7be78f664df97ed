package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
)

// RegistrationBuilder helps create registration requests for tests with a fluent interface
type RegistrationBuilder struct {
	req register_product.Request
}

// NewRegistrationBuilder creates a new builder with default values and a random identifier
func NewRegistrationBuilder() *RegistrationBuilder {
	return &RegistrationBuilder{
		req: register_product.Request{
			ProductID:      uuid.New().String(),
			Name:           "Organic Coffee Beans",
			BatchNumber:    "BCH-2024-001",
			ManufacturedAt: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
			Origin:         "Colombia",
			Category:       "food",
			Description:    "Single-origin arabica, washed process",
			Owner:          "Andes Growers Co-op",
		},
	}
}

// WithProductID sets the externally assigned identifier
func (b *RegistrationBuilder) WithProductID(id string) *RegistrationBuilder {
	b.req.ProductID = id
	return b
}

// WithName sets the product name
func (b *RegistrationBuilder) WithName(name string) *RegistrationBuilder {
	b.req.Name = name
	return b
}

// WithBatch sets the batch number
func (b *RegistrationBuilder) WithBatch(batch string) *RegistrationBuilder {
	b.req.BatchNumber = batch
	return b
}

// WithOrigin sets the origin
func (b *RegistrationBuilder) WithOrigin(origin string) *RegistrationBuilder {
	b.req.Origin = origin
	return b
}

// WithCategory sets the category
func (b *RegistrationBuilder) WithCategory(category string) *RegistrationBuilder {
	b.req.Category = category
	return b
}

// WithOwner sets the current owner
func (b *RegistrationBuilder) WithOwner(owner string) *RegistrationBuilder {
	b.req.Owner = owner
	return b
}

// WithManufacturedAt sets the manufacturing timestamp
func (b *RegistrationBuilder) WithManufacturedAt(at time.Time) *RegistrationBuilder {
	b.req.ManufacturedAt = at
	return b
}

// Build returns a copy of the request
func (b *RegistrationBuilder) Build() *register_product.Request {
	req := b.req
	return &req
}
