package transition_status

import (
	"context"
	"errors"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/appender"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/observability"
)

// Request names the target status and the activity that caused the change.
type Request struct {
	ProductID string
	NewStatus domain.ProductStatus
	Location  string
	Handler   string
	Details   string
}

// Response carries the updated product and the appended record.
type Response struct {
	Product *domain.Product
	Record  *domain.ActivityRecord
}

// Interactor handles the transition status use case.
type Interactor struct {
	appender *appender.Appender
}

// NewInteractor creates a new transition status interactor.
func NewInteractor(appender *appender.Appender) *Interactor {
	return &Interactor{appender: appender}
}

// Execute moves the product to req.NewStatus and appends the matching
// lifecycle record in one commit. An illegal transition writes nothing.
func (i *Interactor) Execute(ctx context.Context, req *Request) (*Response, error) {
	details := domain.ActivityDetails{
		Location: req.Location,
		Handler:  req.Handler,
		Details:  req.Details,
	}

	var from domain.ProductStatus
	product, rec, err := i.appender.Append(ctx, req.ProductID, func(p *domain.Product, head *domain.ActivityRecord, now time.Time) (*domain.ActivityRecord, error) {
		from = p.Status()
		return p.ApplyTransition(req.NewStatus, details, head, now)
	})
	if err != nil {
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) {
			observability.RecordRejectedTransition(invalid.From, invalid.To)
		}
		return nil, err
	}
	observability.RecordTransition(from, product.Status())

	return &Response{Product: product, Record: rec}, nil
}
