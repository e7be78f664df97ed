package list_products

import (
	"context"
	"fmt"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Request contains filtering and pagination parameters.
type Request struct {
	Category  string
	Status    string
	Owner     string
	PageSize  int
	PageToken string
}

// Query handles the list products query use case.
type Query struct {
	readModel contracts.ReadModel
}

// NewQuery creates a new list products query.
func NewQuery(readModel contracts.ReadModel) *Query {
	return &Query{
		readModel: readModel,
	}
}

// Execute retrieves a paginated list of products with filtering.
func (q *Query) Execute(ctx context.Context, req *Request) (*contracts.ListResult, error) {
	if req.Status != "" {
		if _, err := domain.ParseProductStatus(req.Status); err != nil {
			return nil, fmt.Errorf("invalid status filter: %w", err)
		}
	}

	filter := &contracts.ListFilter{
		Category:  req.Category,
		Status:    req.Status,
		Owner:     req.Owner,
		PageSize:  contracts.NormalizePageSize(req.PageSize),
		PageToken: req.PageToken,
	}

	return q.readModel.ListProducts(ctx, filter)
}
