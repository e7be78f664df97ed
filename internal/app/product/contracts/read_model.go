package contracts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Page size bounds for ListProducts.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ErrInvalidPageToken is returned for a page token that was not issued by ListProducts.
var ErrInvalidPageToken = errors.New("invalid page token")

// ProductDTO is a data transfer object for product queries.
type ProductDTO struct {
	ProductID      string    `json:"product_id"`
	Name           string    `json:"name"`
	BatchNumber    string    `json:"batch_number"`
	ManufacturedAt time.Time `json:"manufactured_at"`
	Origin         string    `json:"origin"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Owner          string    `json:"owner"`
	Status         string    `json:"status"`
	Fingerprint    string    `json:"fingerprint"`
	HeadSequence   int64     `json:"head_sequence"`
	HeadHash       string    `json:"head_hash"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListFilter defines filtering options for listing products.
type ListFilter struct {
	Category  string
	Status    string
	Owner     string
	PageSize  int
	PageToken string
}

// ListResult contains paginated product list results.
type ListResult struct {
	Products      []*ProductDTO
	NextPageToken string
}

// ReadModel defines the interface for product queries.
// Read models can bypass the domain layer for performance.
type ReadModel interface {
	// GetProductByID retrieves a product DTO by ID
	GetProductByID(ctx context.Context, productID string) (*ProductDTO, error)

	// ListProducts lists products ordered by identifier. PageToken resumes
	// after the last identifier of the previous page.
	ListProducts(ctx context.Context, filter *ListFilter) (*ListResult, error)
}

// ProductDTOFromState flattens a persisted product into its query shape.
func ProductDTOFromState(s domain.ProductState) *ProductDTO {
	return &ProductDTO{
		ProductID:      s.ID,
		Name:           s.Name,
		BatchNumber:    s.BatchNumber,
		ManufacturedAt: s.ManufacturedAt,
		Origin:         s.Origin,
		Category:       s.Category,
		Description:    s.Description,
		Owner:          s.Owner,
		Status:         string(s.Status),
		Fingerprint:    s.Fingerprint,
		HeadSequence:   s.Head.Sequence,
		HeadHash:       s.Head.Hash,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// NormalizePageSize clamps a requested page size into range.
func NormalizePageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// EncodePageToken turns the last identifier of a page into an opaque token.
func EncodePageToken(lastProductID string) string {
	if lastProductID == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(lastProductID))
}

// DecodePageToken is the inverse of EncodePageToken. An empty token starts
// from the beginning.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return string(b), nil
}
