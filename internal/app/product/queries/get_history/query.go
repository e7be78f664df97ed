package get_history

import (
	"context"
	"errors"
	"iter"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Request contains the product whose chain is read.
type Request struct {
	ProductID string
}

// Query reads a product's activity chain.
type Query struct {
	products contracts.ProductRepository
	chains   contracts.ChainRepository
}

// NewQuery creates a new get history query.
func NewQuery(products contracts.ProductRepository, chains contracts.ChainRepository) *Query {
	return &Query{
		products: products,
		chains:   chains,
	}
}

// Stream returns the chain in ascending sequence order, bounded by the last
// record stored when Stream was called. Appends that land later are not
// observed. Records stored past the product head are included so the full
// chain is visible; verify reports them. The sequence can be ranged over
// more than once.
func (q *Query) Stream(ctx context.Context, req *Request) (iter.Seq2[*domain.ActivityRecord, error], error) {
	product, err := q.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	through := product.Head().Sequence
	head, err := q.chains.Head(ctx, product.ID())
	switch {
	case err == nil && head.Sequence > through:
		through = head.Sequence
	case err != nil && !errors.Is(err, domain.ErrProductNotFound):
		return nil, err
	}
	return q.chains.Records(ctx, product.ID(), through), nil
}

// Execute collects the whole chain.
func (q *Query) Execute(ctx context.Context, req *Request) ([]*domain.ActivityRecord, error) {
	records, err := q.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var out []*domain.ActivityRecord
	for rec, err := range records {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
