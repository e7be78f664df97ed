package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// GetProductByID retrieves a product DTO by ID.
func (s *Store) GetProductByID(ctx context.Context, productID string) (*contracts.ProductDTO, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID)
	st, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product: %w", mapErr(err))
	}
	return contracts.ProductDTOFromState(st), nil
}

// ListProducts lists products ordered by identifier using keyset pagination.
func (s *Store) ListProducts(ctx context.Context, filter *contracts.ListFilter) (*contracts.ListResult, error) {
	after, err := contracts.DecodePageToken(filter.PageToken)
	if err != nil {
		return nil, err
	}
	pageSize := contracts.NormalizePageSize(filter.PageSize)

	where := []string{"product_id > ?"}
	args := []any{after}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, filter.Owner)
	}
	// One extra row tells whether another page exists.
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY product_id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", mapErr(err))
	}
	defer func() { _ = rows.Close() }()

	result := &contracts.ListResult{}
	for rows.Next() {
		st, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if len(result.Products) == pageSize {
			result.NextPageToken = contracts.EncodePageToken(result.Products[pageSize-1].ProductID)
			break
		}
		result.Products = append(result.Products, contracts.ProductDTOFromState(st))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", mapErr(err))
	}
	return result, nil
}
