package repo

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_product"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/query"
)

// ReadModelImpl implements ReadModel for Spanner.
type ReadModelImpl struct {
	client   *spanner.Client
	products *ProductRepo
}

// NewReadModel creates a new ReadModel implementation.
func NewReadModel(client *spanner.Client, products *ProductRepo) *ReadModelImpl {
	return &ReadModelImpl{
		client:   client,
		products: products,
	}
}

// GetProductByID retrieves a product DTO by ID.
func (rm *ReadModelImpl) GetProductByID(ctx context.Context, productID string) (*contracts.ProductDTO, error) {
	data, err := rm.products.read(ctx, productID)
	if err != nil {
		return nil, err
	}
	return contracts.ProductDTOFromState(dataToState(data)), nil
}

// ListProducts pages through products in identifier order. One extra row
// is fetched to learn whether another page exists.
func (rm *ReadModelImpl) ListProducts(ctx context.Context, filter *contracts.ListFilter) (*contracts.ListResult, error) {
	after, err := contracts.DecodePageToken(filter.PageToken)
	if err != nil {
		return nil, err
	}
	pageSize := contracts.NormalizePageSize(filter.PageSize)

	q := query.From(m_product.TableName).Select(m_product.Columns...)
	if filter.Category != "" {
		q = q.Where(query.Eq(m_product.Category, filter.Category))
	}
	if filter.Status != "" {
		q = q.Where(query.Eq(m_product.Status, filter.Status))
	}
	if filter.Owner != "" {
		q = q.Where(query.Eq(m_product.Owner, filter.Owner))
	}
	if after != "" {
		q = q.Where(query.Gt(m_product.ProductID, after))
	}
	stmt := q.OrderBy(m_product.ProductID, query.Asc).Limit(int64(pageSize) + 1).Build()

	iter := rm.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	products := make([]*contracts.ProductDTO, 0, pageSize)
	for {
		row, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate products: %w", mapErr(err))
		}

		var data m_product.Data
		if err := row.ToStruct(&data); err != nil {
			return nil, fmt.Errorf("failed to parse product: %w", err)
		}
		products = append(products, contracts.ProductDTOFromState(dataToState(&data)))
	}

	result := &contracts.ListResult{Products: products}
	if len(products) > pageSize {
		result.Products = products[:pageSize]
		result.NextPageToken = contracts.EncodePageToken(products[pageSize-1].ProductID)
	}
	return result, nil
}
