package verify_product

import (
	"context"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/observability"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
)

// Request contains the product to verify.
type Request struct {
	ProductID string
}

// Query verifies a product's fingerprint and activity chain.
type Query struct {
	products contracts.ProductRepository
	chains   contracts.ChainRepository
	clock    clock.Clock
}

// NewQuery creates a new verify product query.
func NewQuery(products contracts.ProductRepository, chains contracts.ChainRepository, clock clock.Clock) *Query {
	return &Query{
		products: products,
		chains:   chains,
		clock:    clock,
	}
}

// Execute takes no lock. The chain is read up to the head loaded with the
// product, so a concurrent append yields a stale but consistent result.
// Records stored past that head are reported unless the product head moved
// in the meantime, which is what a legitimate append does.
func (q *Query) Execute(ctx context.Context, req *Request) (domain.VerificationResult, error) {
	product, err := q.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return domain.VerificationResult{}, err
	}

	start := q.clock.Now()
	result := domain.Verify(product, q.chains.Records(ctx, product.ID(), product.Head().Sequence))
	if err := ctx.Err(); err != nil {
		return domain.VerificationResult{}, err
	}
	if err := contracts.CheckStoredHead(ctx, q.products, q.chains, product, &result); err != nil {
		return domain.VerificationResult{}, err
	}
	observability.RecordVerification(result, q.clock.Now().Sub(start))

	return result, nil
}
