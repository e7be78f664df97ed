package contracts

import (
	"context"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// ProductRepository defines the read side of product persistence.
// Writes go through a Committer so the product row and its chain move together.
type ProductRepository interface {
	// GetByID reconstructs the product aggregate.
	// Returns domain.ErrProductNotFound if the identifier is unknown.
	GetByID(ctx context.Context, productID string) (*domain.Product, error)

	// FindIDByFingerprint returns the identifier registered under fingerprint,
	// or domain.ErrProductNotFound.
	FindIDByFingerprint(ctx context.Context, fingerprint string) (string, error)

	// Exists checks if a product exists
	Exists(ctx context.Context, productID string) (bool, error)
}
