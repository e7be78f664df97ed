package repo

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_product"
)

// ProductRepo reads products from Spanner and builds product mutations.
type ProductRepo struct {
	client *spanner.Client
	model  *m_product.Model
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(client *spanner.Client) *ProductRepo {
	return &ProductRepo{
		client: client,
		model:  m_product.NewModel(),
	}
}

// InsertMut creates a mutation for inserting a new product.
func (r *ProductRepo) InsertMut(product *domain.Product) *spanner.Mutation {
	return r.model.InsertMut(domainToData(product))
}

// UpdateMut creates a mutation for updating a product (only dirty fields).
// updated_at is always written.
func (r *ProductRepo) UpdateMut(product *domain.Product) *spanner.Mutation {
	changes := product.Changes()
	updates := make(map[string]interface{})

	if changes.Dirty(domain.FieldStatus) {
		updates[m_product.Status] = string(product.Status())
	}

	if changes.Dirty(domain.FieldHead) {
		updates[m_product.HeadSequence] = product.Head().Sequence
		updates[m_product.HeadHash] = product.Head().Hash
	}

	updates[m_product.UpdatedAt] = product.UpdatedAt()

	return r.model.UpdateMut(product.ID(), updates)
}

// GetByID retrieves a product by ID, reconstructing the domain aggregate.
func (r *ProductRepo) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	data, err := r.read(ctx, productID)
	if err != nil {
		return nil, err
	}
	return dataToDomain(data), nil
}

func (r *ProductRepo) read(ctx context.Context, productID string) (*m_product.Data, error) {
	row, err := r.client.Single().ReadRow(ctx, m_product.TableName, spanner.Key{productID}, m_product.Columns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to read product: %w", mapErr(err))
	}

	var data m_product.Data
	if err := row.ToStruct(&data); err != nil {
		return nil, fmt.Errorf("failed to parse product: %w", err)
	}
	return &data, nil
}

// FindIDByFingerprint looks the fingerprint up through its unique index.
func (r *ProductRepo) FindIDByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	iter := r.client.Single().ReadUsingIndex(ctx, m_product.TableName, m_product.FingerprintIndex,
		spanner.Key{fingerprint}, []string{m_product.ProductID})
	defer iter.Stop()

	row, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", domain.ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read fingerprint index: %w", mapErr(err))
	}

	var productID string
	if err := row.Column(0, &productID); err != nil {
		return "", fmt.Errorf("failed to parse product id: %w", err)
	}
	return productID, nil
}

// Exists checks if a product exists.
func (r *ProductRepo) Exists(ctx context.Context, productID string) (bool, error) {
	row, err := r.client.Single().ReadRow(ctx, m_product.TableName, spanner.Key{productID}, []string{m_product.ProductID})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check product existence: %w", mapErr(err))
	}
	return row != nil, nil
}

// domainToData converts a domain Product to database Data.
func domainToData(product *domain.Product) *m_product.Data {
	s := product.State()
	return &m_product.Data{
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

// dataToState converts database Data to the persisted product state.
// Spanner returns timestamps in UTC already.
func dataToState(data *m_product.Data) domain.ProductState {
	return domain.ProductState{
		ID:             data.ProductID,
		Name:           data.Name,
		BatchNumber:    data.BatchNumber,
		ManufacturedAt: data.ManufacturedAt.UTC(),
		Origin:         data.Origin,
		Category:       data.Category,
		Description:    data.Description,
		Owner:          data.Owner,
		Status:         domain.ProductStatus(data.Status),
		Fingerprint:    data.Fingerprint,
		Head:           domain.ChainHead{Sequence: data.HeadSequence, Hash: data.HeadHash},
		CreatedAt:      data.CreatedAt.UTC(),
		UpdatedAt:      data.UpdatedAt.UTC(),
	}
}

// dataToDomain converts database Data to a domain Product.
func dataToDomain(data *m_product.Data) *domain.Product {
	return domain.ReconstructProduct(dataToState(data))
}
