package register_product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/appender"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
)

// Request contains the registration data of a new product.
type Request struct {
	ProductID      string
	Name           string
	BatchNumber    string
	ManufacturedAt time.Time
	Origin         string
	Category       string
	Description    string
	Owner          string
}

// Response carries the registered product and its genesis record.
type Response struct {
	Product *domain.Product
	Genesis *domain.ActivityRecord
}

// Interactor handles the register product use case.
type Interactor struct {
	repo     contracts.ProductRepository
	appender *appender.Appender
	clock    clock.Clock
}

// NewInteractor creates a new register product interactor.
func NewInteractor(repo contracts.ProductRepository, appender *appender.Appender, clock clock.Clock) *Interactor {
	return &Interactor{
		repo:     repo,
		appender: appender,
		clock:    clock,
	}
}

// Execute validates the registration, mints the fingerprint and genesis
// record, and commits both with a product.registered event. Registering the
// same immutable data twice fails with domain.ErrDuplicateFingerprint.
func (i *Interactor) Execute(ctx context.Context, req *Request) (*Response, error) {
	data := domain.RegistrationData{
		ProductID:      req.ProductID,
		Name:           req.Name,
		BatchNumber:    req.BatchNumber,
		ManufacturedAt: req.ManufacturedAt,
		Origin:         req.Origin,
		Category:       req.Category,
		Owner:          req.Owner,
	}

	product, genesis, err := domain.NewProduct(data, req.Description, i.clock.Now())
	if err != nil {
		return nil, err
	}

	existing, err := i.repo.FindIDByFingerprint(ctx, product.Fingerprint())
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: registered as %s", domain.ErrDuplicateFingerprint, existing)
	case !errors.Is(err, domain.ErrProductNotFound):
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	exists, err := i.repo.Exists(ctx, product.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to check product existence: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductAlreadyExists, product.ID())
	}

	if err := i.appender.Insert(ctx, product, genesis); err != nil {
		return nil, fmt.Errorf("failed to register product: %w", err)
	}

	return &Response{Product: product, Genesis: genesis}, nil
}
