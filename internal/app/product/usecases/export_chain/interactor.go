package export_chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
)

// Request selects the product to export.
type Request struct {
	ProductID string
	// Force exports a chain that fails verification, for forensics.
	Force bool
}

// Response describes the stored bundle.
type Response struct {
	Key          string
	Size         int
	Verification domain.VerificationResult
}

// Bundle is the archived, self-contained proof of a product's history.
// Anyone holding it can recompute every hash without access to the ledger.
type Bundle struct {
	Scheme       string                    `json:"scheme"`
	ExportedAt   time.Time                 `json:"exported_at"`
	Product      *contracts.ProductDTO     `json:"product"`
	Records      []*domain.ActivityRecord  `json:"records"`
	Verification domain.VerificationResult `json:"verification"`
}

// Interactor handles the export chain use case.
type Interactor struct {
	products contracts.ProductRepository
	chains   contracts.ChainRepository
	archive  contracts.ArchiveStore
	clock    clock.Clock
}

// NewInteractor creates a new export chain interactor.
func NewInteractor(
	products contracts.ProductRepository,
	chains contracts.ChainRepository,
	archive contracts.ArchiveStore,
	clock clock.Clock,
) *Interactor {
	return &Interactor{
		products: products,
		chains:   chains,
		archive:  archive,
		clock:    clock,
	}
}

// Execute snapshots the chain up to the current head, verifies it and writes
// the bundle to the archive.
func (i *Interactor) Execute(ctx context.Context, req *Request) (*Response, error) {
	product, err := i.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	var records []*domain.ActivityRecord
	for rec, err := range i.chains.Records(ctx, product.ID(), product.Head().Sequence) {
		if err != nil {
			return nil, fmt.Errorf("failed to read chain: %w", err)
		}
		records = append(records, rec)
	}

	result := domain.Verify(product, domain.RecordSeq(records))
	if err := contracts.CheckStoredHead(ctx, i.products, i.chains, product, &result); err != nil {
		return nil, err
	}
	if !result.Valid && !req.Force {
		return nil, &domain.ChainCorruptError{
			ProductID: product.ID(),
			Sequence:  result.Failures[0].Sequence,
			Reason:    fmt.Sprintf("refusing to export: %d integrity failures, first is %s", len(result.Failures), result.Failures[0].Kind),
		}
	}

	bundle := Bundle{
		Scheme:       domain.HashScheme,
		ExportedAt:   domain.NormalizeTimestamp(i.clock.Now()),
		Product:      contracts.ProductDTOFromState(product.State()),
		Records:      records,
		Verification: result,
	}

	body, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}

	key := BundleKey(product.ID(), product.Head())
	if err := i.archive.Put(ctx, key, body, "application/json"); err != nil {
		return nil, fmt.Errorf("failed to store bundle: %w", err)
	}

	return &Response{Key: key, Size: len(body), Verification: result}, nil
}

// BundleKey names the archive object for a chain ending at head. The
// sequence is zero-padded so a product's bundles list in chain order.
func BundleKey(productID string, head domain.ChainHead) string {
	hash := head.Hash
	if len(hash) > 16 {
		hash = hash[:16]
	}
	segment := url.PathEscape(productID)
	if strings.Trim(segment, ".") == "" {
		segment = strings.ReplaceAll(segment, ".", "%2E")
	}
	return fmt.Sprintf("chains/%s/%08d-%s.json", segment, head.Sequence, hash)
}
