package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// GetProductByID retrieves a product DTO by ID.
func (s *Store) GetProductByID(ctx context.Context, productID string) (*contracts.ProductDTO, error) {
	st, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
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

	where := []string{"product_id > $1"}
	args := []any{after}
	add := func(column, value string) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Category != "" {
		add("category", filter.Category)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.Owner != "" {
		add("owner", filter.Owner)
	}
	args = append(args, pageSize+1)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY product_id LIMIT $%d`,
		productColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", mapErr(err))
	}
	defer rows.Close()

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
