// Package committer applies batches of Spanner mutations atomically.
//
// # Usage Pattern
//
// Repositories never write directly. They return mutations, a store collects
// them into a CommitPlan and the Committer applies the whole plan in one
// transaction:
//
//	// 1. Repositories return mutations (they don't apply them)
//	plan := committer.NewPlan()
//	plan.Add(productRepo.UpdateMut(product))
//	plan.Add(chainRepo.InsertMut(record))
//
//	// 2. Outbox events join the same plan
//	for _, event := range events {
//	    plan.Add(outboxRepo.InsertMut(event))
//	}
//
//	// 3. Apply everything atomically, guarded by preconditions
//	return c.ApplyWithPreconditions(ctx, plan,
//	    committer.ColumnsMatch("products", spanner.Key{id}, []string{"head_sequence", "head_hash"}, seq, hash))
//
// Preconditions run inside the read-write transaction before the mutations
// are buffered, so a failed check leaves the database untouched.
package committer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

var (
	// ErrPreconditionFailed means a guarded row no longer holds the expected values.
	ErrPreconditionFailed = errors.New("commit precondition failed")

	// ErrRowNotFound means a guarded row does not exist.
	ErrRowNotFound = errors.New("guarded row not found")

	// ErrRowExists means a row that must be absent exists.
	ErrRowExists = errors.New("row already exists")

	// ErrIndexEntryExists means a unique index already holds the key.
	ErrIndexEntryExists = errors.New("unique index entry already exists")
)

// CommitPlan is a typed wrapper around Spanner mutations.
// It collects mutations from multiple sources and applies them atomically.
type CommitPlan struct {
	mutations []*spanner.Mutation
}

// NewPlan creates a new empty CommitPlan.
func NewPlan() *CommitPlan {
	return &CommitPlan{
		mutations: make([]*spanner.Mutation, 0),
	}
}

// Add adds a mutation to the plan.
// Nil mutations are silently ignored for convenience.
func (cp *CommitPlan) Add(mut *spanner.Mutation) {
	if mut != nil {
		cp.mutations = append(cp.mutations, mut)
	}
}

// AddMultiple adds multiple mutations to the plan.
func (cp *CommitPlan) AddMultiple(muts []*spanner.Mutation) {
	for _, mut := range muts {
		cp.Add(mut)
	}
}

// Mutations returns all collected mutations.
func (cp *CommitPlan) Mutations() []*spanner.Mutation {
	return cp.mutations
}

// IsEmpty returns true if the plan has no mutations.
func (cp *CommitPlan) IsEmpty() bool {
	return len(cp.mutations) == 0
}

// Count returns the number of mutations in the plan.
func (cp *CommitPlan) Count() int {
	return len(cp.mutations)
}

// Precondition is checked inside the read-write transaction before the plan
// is buffered. Returning an error aborts the commit.
type Precondition func(ctx context.Context, txn *spanner.ReadWriteTransaction) error

// ColumnsMatch requires the row at key to hold want in columns, in order.
func ColumnsMatch(table string, key spanner.Key, columns []string, want ...interface{}) Precondition {
	return func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, table, key, columns)
		if spanner.ErrCode(err) == codes.NotFound {
			return fmt.Errorf("%s %v: %w", table, key, ErrRowNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", table, err)
		}

		for i, expected := range want {
			got := reflect.New(reflect.TypeOf(expected))
			if err := row.Column(i, got.Interface()); err != nil {
				return fmt.Errorf("failed to parse %s.%s: %w", table, columns[i], err)
			}
			if got.Elem().Interface() != expected {
				return fmt.Errorf("%s.%s is %v, expected %v: %w", table, columns[i], got.Elem().Interface(), expected, ErrPreconditionFailed)
			}
		}
		return nil
	}
}

// RowAbsent requires that no row exists at key. column is any column of table.
func RowAbsent(table string, key spanner.Key, column string) Precondition {
	return func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		_, err := txn.ReadRow(ctx, table, key, []string{column})
		switch {
		case err == nil:
			return fmt.Errorf("%s %v: %w", table, key, ErrRowExists)
		case spanner.ErrCode(err) == codes.NotFound:
			return nil
		default:
			return fmt.Errorf("failed to read %s: %w", table, err)
		}
	}
}

// IndexKeyAbsent requires that the unique index holds no entry for key.
// column must be stored in the index.
func IndexKeyAbsent(table, index string, key spanner.Key, column string) Precondition {
	return func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		iter := txn.ReadUsingIndex(ctx, table, index, spanner.KeySetFromKeys(key), []string{column})
		defer iter.Stop()

		_, err := iter.Next()
		switch {
		case err == nil:
			return fmt.Errorf("%s %v: %w", index, key, ErrIndexEntryExists)
		case errors.Is(err, iterator.Done):
			return nil
		default:
			return fmt.Errorf("failed to read %s: %w", index, err)
		}
	}
}

// Committer provides transaction execution for CommitPlans.
type Committer struct {
	client *spanner.Client
}

// NewCommitter creates a new Committer.
func NewCommitter(client *spanner.Client) *Committer {
	return &Committer{client: client}
}

// Apply executes the CommitPlan atomically within a Spanner transaction.
func (c *Committer) Apply(ctx context.Context, plan *CommitPlan) error {
	if plan.IsEmpty() {
		return nil // Nothing to commit
	}

	_, err := c.client.Apply(ctx, plan.Mutations())
	if err != nil {
		return fmt.Errorf("failed to apply commit plan: %w", err)
	}

	return nil
}

// ApplyWithReadWriteTransaction runs fn in a read-write transaction.
// This is useful when you need to perform reads before building mutations.
func (c *Committer) ApplyWithReadWriteTransaction(ctx context.Context, fn func(context.Context, *spanner.ReadWriteTransaction) error) error {
	_, err := c.client.ReadWriteTransaction(ctx, fn)
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

// ApplyWithPreconditions checks every precondition and then buffers the
// plan, all in one read-write transaction. Spanner retries the whole
// function on abort, so the checks are repeated against fresh data.
func (c *Committer) ApplyWithPreconditions(ctx context.Context, plan *CommitPlan, checks ...Precondition) error {
	if plan.IsEmpty() {
		return nil // Nothing to commit
	}

	_, err := c.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		for _, check := range checks {
			if err := check(ctx, txn); err != nil {
				return err
			}
		}
		return txn.BufferWrite(plan.Mutations())
	})
	if err != nil {
		return fmt.Errorf("failed to apply commit plan: %w", err)
	}

	return nil
}
