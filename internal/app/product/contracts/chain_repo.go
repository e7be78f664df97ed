package contracts

import (
	"context"
	"errors"
	"iter"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// ChainRepository reads the per-product activity chain.
type ChainRepository interface {
	// Head returns the record with the highest sequence number.
	// Returns domain.ErrProductNotFound if the chain has no records.
	Head(ctx context.Context, productID string) (*domain.ActivityRecord, error)

	// Records yields the chain in ascending sequence order, stopping after
	// sequence through. Nothing is read until the sequence is ranged over,
	// and every range starts again from sequence 0. Records never holds a
	// lock or transaction open while the caller handles a yielded record.
	Records(ctx context.Context, productID string, through int64) iter.Seq2[*domain.ActivityRecord, error]
}

// RecordPageSize bounds how many records a backend fetches per round trip
// while streaming a chain.
const RecordPageSize = 256

// CheckStoredHead adds a head mismatch to result when the chain holds
// records past the head product was loaded with. A legitimate append moves
// the product head in the same commit, so the finding is only added when a
// second product read shows the head has not moved.
func CheckStoredHead(ctx context.Context, products ProductRepository, chains ChainRepository, product *domain.Product, result *domain.VerificationResult) error {
	stored, err := chains.Head(ctx, product.ID())
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		// An empty chain is already reported by Verify.
		return nil
	case err != nil:
		return err
	case stored.Sequence <= product.Head().Sequence:
		return nil
	}

	current, err := products.GetByID(ctx, product.ID())
	if err != nil {
		return err
	}
	if current.Head() == product.Head() {
		result.NoteStoredHead(product.Head(), stored.Head())
	}
	return nil
}
