// Package appender runs the load, mutate and commit cycle that every chain
// write goes through.
package appender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/observability"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/keylock"
)

// MutateFunc applies one domain operation to p, linking the new record onto head.
type MutateFunc func(p *domain.Product, head *domain.ActivityRecord, now time.Time) (*domain.ActivityRecord, error)

// RetryPolicy bounds how often a transient store failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy retries three times with a linear 50ms backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 50 * time.Millisecond}

// Appender serializes writes per product and commits each one atomically
// with its outbox events.
type Appender struct {
	products  contracts.ProductRepository
	chains    contracts.ChainRepository
	committer contracts.Committer
	locks     *keylock.Locker
	clock     clock.Clock
	retry     RetryPolicy
}

// New creates an Appender. locks may be shared with other writers in the process.
func New(
	products contracts.ProductRepository,
	chains contracts.ChainRepository,
	committer contracts.Committer,
	locks *keylock.Locker,
	clk clock.Clock,
	retry RetryPolicy,
) *Appender {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Appender{
		products:  products,
		chains:    chains,
		committer: committer,
		locks:     locks,
		clock:     clk,
		retry:     retry,
	}
}

// Append loads productID, applies mutate and commits the product row, the new
// record and the recorded events as one unit. Only the commit is retried, and
// always with the same plan, so an ambiguous failure cannot produce a second record.
func (a *Appender) Append(ctx context.Context, productID string, mutate MutateFunc) (*domain.Product, *domain.ActivityRecord, error) {
	unlock, err := a.locks.Lock(ctx, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("waiting for product %s: %w", productID, err)
	}
	defer unlock()

	product, head, err := a.loadConsistent(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	// Clear events on function exit to prevent duplicates on retry
	defer product.ClearEvents()

	expected := product.Head()
	rec, err := mutate(product, head, a.clock.Now())
	if err != nil {
		return nil, nil, err
	}

	plan := contracts.NewAppendPlan(product, expected, rec)
	events, err := contracts.EnrichEvents(product.DomainEvents(), rec.Timestamp)
	if err != nil {
		return nil, nil, err
	}
	plan.AddEvents(events...)

	if err := a.Commit(ctx, plan, func(ctx context.Context) (bool, error) {
		return a.landed(ctx, rec)
	}); err != nil {
		if errors.Is(err, contracts.ErrHeadConflict) {
			observability.RecordAppendConflict()
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
		}
		return nil, nil, err
	}

	observability.RecordAppended(rec)
	product.Changes().Clear()
	return product, rec, nil
}

// Insert commits a freshly registered product with its genesis record and events.
func (a *Appender) Insert(ctx context.Context, product *domain.Product, genesis *domain.ActivityRecord) error {
	unlock, err := a.locks.Lock(ctx, product.ID())
	if err != nil {
		return fmt.Errorf("waiting for product %s: %w", product.ID(), err)
	}
	defer unlock()

	// Clear events on function exit to prevent duplicates on retry
	defer product.ClearEvents()

	plan := contracts.NewRegistrationPlan(product, genesis)
	events, err := contracts.EnrichEvents(product.DomainEvents(), genesis.Timestamp)
	if err != nil {
		return err
	}
	plan.AddEvents(events...)

	err = a.Commit(ctx, plan, func(ctx context.Context) (bool, error) {
		stored, err := a.products.GetByID(ctx, product.ID())
		if err != nil {
			return false, err
		}
		return stored.Fingerprint() == product.Fingerprint() && stored.Head() == genesis.Head(), nil
	})
	if err != nil {
		return err
	}

	observability.RecordAppended(genesis)
	product.Changes().Clear()
	return nil
}

// Commit applies plan, retrying transient failures. When a retry is refused
// because its preconditions no longer hold, landed decides whether the
// earlier attempt already wrote the plan.
func (a *Appender) Commit(ctx context.Context, plan *contracts.CommitPlan, landed func(context.Context) (bool, error)) error {
	retried := false
	return a.do(ctx, func() error {
		err := a.committer.Commit(ctx, plan)
		if err != nil && retried && !errors.Is(err, contracts.ErrTransient) {
			ok, checkErr := landed(ctx)
			if checkErr == nil && ok {
				return nil
			}
		}
		retried = true
		return err
	})
}

// loadConsistent loads the product and its chain head. Every commit moves the
// product head together with the record, so a chain still ahead of the
// product after a second read was written around the ledger and can never
// be appended to.
func (a *Appender) loadConsistent(ctx context.Context, productID string) (*domain.Product, *domain.ActivityRecord, error) {
	var product *domain.Product
	var head *domain.ActivityRecord
	read := func() error {
		var err error
		product, head, err = a.load(ctx, productID)
		return err
	}

	if err := a.do(ctx, read); err != nil {
		return nil, nil, err
	}
	if head.Sequence <= product.Head().Sequence {
		return product, head, nil
	}

	// Another process may have committed between the two reads.
	if err := a.do(ctx, read); err != nil {
		return nil, nil, err
	}
	if head.Sequence > product.Head().Sequence {
		return nil, nil, &domain.ChainCorruptError{
			ProductID: productID,
			Sequence:  head.Sequence,
			Reason:    fmt.Sprintf("records stored past product head %d", product.Head().Sequence),
		}
	}
	return product, head, nil
}

func (a *Appender) load(ctx context.Context, productID string) (*domain.Product, *domain.ActivityRecord, error) {
	product, err := a.products.GetByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	head, err := a.chains.Head(ctx, productID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return nil, nil, &domain.ChainCorruptError{ProductID: productID, Sequence: 0, Reason: "product has no activity records"}
	case err != nil:
		return nil, nil, err
	}

	return product, head, nil
}

// landed reports whether rec is already the stored head.
func (a *Appender) landed(ctx context.Context, rec *domain.ActivityRecord) (bool, error) {
	head, err := a.chains.Head(ctx, rec.ProductID)
	if err != nil {
		return false, err
	}
	return head.Sequence == rec.Sequence && head.Hash == rec.Hash, nil
}

func (a *Appender) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, contracts.ErrTransient) {
			return err
		}
		if attempt == a.retry.MaxAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * a.retry.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", a.retry.MaxAttempts, err)
}
