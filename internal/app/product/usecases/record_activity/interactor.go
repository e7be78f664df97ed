package record_activity

import (
	"context"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/appender"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Request describes a custom activity such as a quality check or customs hold.
type Request struct {
	ProductID string
	EventType string
	Location  string
	Handler   string
	Details   string
}

// Interactor handles the record activity use case.
type Interactor struct {
	appender *appender.Appender
}

// NewInteractor creates a new record activity interactor.
func NewInteractor(appender *appender.Appender) *Interactor {
	return &Interactor{appender: appender}
}

// Execute appends a custom activity without changing the product status.
func (i *Interactor) Execute(ctx context.Context, req *Request) (*domain.ActivityRecord, error) {
	eventType := domain.EventType(req.EventType)
	if err := domain.ValidateCustomEventType(eventType); err != nil {
		return nil, err
	}

	details := domain.ActivityDetails{
		Location: req.Location,
		Handler:  req.Handler,
		Details:  req.Details,
	}

	_, rec, err := i.appender.Append(ctx, req.ProductID, func(p *domain.Product, head *domain.ActivityRecord, now time.Time) (*domain.ActivityRecord, error) {
		return p.RecordActivity(eventType, details, head, now)
	})
	return rec, err
}
