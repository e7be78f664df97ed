package contracts

import (
	"context"
	"errors"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

var (
	// ErrHeadConflict means the product head moved between load and commit.
	// Nothing from the plan was written.
	ErrHeadConflict = errors.New("chain head changed since the product was loaded")

	// ErrTransient marks backing-store failures that are safe to retry with
	// the same plan.
	ErrTransient = errors.New("transient store failure")
)

// CommitPlan collects everything a use case writes in one atomic unit:
// the product row, at most one new chain record and the outbox events.
type CommitPlan struct {
	InsertProduct *domain.Product
	UpdateProduct *domain.Product
	ExpectedHead  domain.ChainHead
	Records       []*domain.ActivityRecord
	Events        []*OutboxEvent
}

// NewRegistrationPlan inserts p together with its genesis record.
func NewRegistrationPlan(p *domain.Product, genesis *domain.ActivityRecord) *CommitPlan {
	return &CommitPlan{
		InsertProduct: p,
		Records:       []*domain.ActivityRecord{genesis},
	}
}

// NewAppendPlan updates p and appends rec, provided the stored head is still expected.
func NewAppendPlan(p *domain.Product, expected domain.ChainHead, rec *domain.ActivityRecord) *CommitPlan {
	return &CommitPlan{
		UpdateProduct: p,
		ExpectedHead:  expected,
		Records:       []*domain.ActivityRecord{rec},
	}
}

// AddEvents adds outbox events to the plan.
func (cp *CommitPlan) AddEvents(events ...*OutboxEvent) {
	cp.Events = append(cp.Events, events...)
}

// IsEmpty returns true if the plan writes nothing.
func (cp *CommitPlan) IsEmpty() bool {
	return cp.InsertProduct == nil && cp.UpdateProduct == nil && len(cp.Records) == 0 && len(cp.Events) == 0
}

// Committer applies a CommitPlan atomically.
//
// For an insert it fails with domain.ErrProductAlreadyExists or
// domain.ErrDuplicateFingerprint. For an update it fails with
// ErrHeadConflict unless the stored head equals ExpectedHead. Backend
// unavailability is wrapped in ErrTransient.
type Committer interface {
	Commit(ctx context.Context, plan *CommitPlan) error
}
