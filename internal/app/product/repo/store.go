// Package repo is the Cloud Spanner ledger backend. Repositories return
// mutations and Store.Commit applies them through internal/pkg/committer,
// guarded by head and uniqueness checks read in the same transaction.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_product"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/committer"
)

// Store composes the Spanner repositories into a contracts.Store.
type Store struct {
	*ProductRepo
	*ChainRepo
	*OutboxRepo
	*EventsReadModel
	*ReadModelImpl

	client    *spanner.Client
	committer *committer.Committer
}

var _ contracts.Store = (*Store)(nil)

// NewStore opens a client on the database path
// (projects/<p>/instances/<i>/databases/<d>).
func NewStore(ctx context.Context, databasePath string) (*Store, error) {
	client, err := spanner.NewClient(ctx, databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create spanner client: %w", err)
	}
	return NewStoreWithClient(client), nil
}

// NewStoreWithClient wraps an existing client. Close closes it.
func NewStoreWithClient(client *spanner.Client) *Store {
	c := committer.NewCommitter(client)
	products := NewProductRepo(client)
	return &Store{
		ProductRepo:     products,
		ChainRepo:       NewChainRepo(client),
		OutboxRepo:      NewOutboxRepo(client, c),
		EventsReadModel: NewEventsReadModel(client),
		ReadModelImpl:   NewReadModel(client, products),
		client:          client,
		committer:       c,
	}
}

// Client exposes the underlying client for tooling and tests.
func (s *Store) Client() *spanner.Client {
	return s.client
}

// Commit turns the plan into mutations and applies them in one read-write
// transaction after checking the registration or head precondition.
func (s *Store) Commit(ctx context.Context, plan *contracts.CommitPlan) error {
	if plan.IsEmpty() {
		return nil
	}

	muts := committer.NewPlan()
	var checks []committer.Precondition

	if p := plan.InsertProduct; p != nil {
		muts.Add(s.ProductRepo.InsertMut(p))
		checks = append(checks,
			committer.RowAbsent(m_product.TableName, spanner.Key{p.ID()}, m_product.ProductID),
			committer.IndexKeyAbsent(m_product.TableName, m_product.FingerprintIndex, spanner.Key{p.Fingerprint()}, m_product.ProductID),
		)
	}
	if p := plan.UpdateProduct; p != nil {
		muts.Add(s.ProductRepo.UpdateMut(p))
		checks = append(checks, committer.ColumnsMatch(m_product.TableName, spanner.Key{p.ID()},
			[]string{m_product.HeadSequence, m_product.HeadHash},
			plan.ExpectedHead.Sequence, plan.ExpectedHead.Hash))
	}
	for _, rec := range plan.Records {
		muts.Add(s.ChainRepo.InsertMut(rec))
	}
	for _, e := range plan.Events {
		muts.Add(s.OutboxRepo.InsertMut(e))
	}

	err := s.committer.ApplyWithPreconditions(ctx, muts, checks...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, committer.ErrRowExists):
		return domain.ErrProductAlreadyExists
	case errors.Is(err, committer.ErrIndexEntryExists):
		return domain.ErrDuplicateFingerprint
	case errors.Is(err, committer.ErrRowNotFound):
		return domain.ErrProductNotFound
	case errors.Is(err, committer.ErrPreconditionFailed):
		return contracts.ErrHeadConflict
	case spanner.ErrCode(err) == codes.AlreadyExists && plan.InsertProduct != nil:
		return domain.ErrProductAlreadyExists
	case spanner.ErrCode(err) == codes.AlreadyExists:
		// another writer took the record's sequence
		return contracts.ErrHeadConflict
	}
	return mapErr(err)
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Single().Query(ctx, spanner.Statement{SQL: "SELECT 1"})
	defer iter.Stop()

	if _, err := iter.Next(); err != nil {
		return fmt.Errorf("spanner ping: %w", mapErr(err))
	}
	return nil
}

// Close releases the client's sessions.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// mapErr marks errors that are safe to retry with the same plan.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch spanner.ErrCode(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %v", contracts.ErrTransient, err)
	}
	if msg := err.Error(); strings.Contains(msg, "session pool was closed") || strings.Contains(msg, "client is closed") {
		return fmt.Errorf("%w: %v", contracts.ErrTransient, err)
	}
	return err
}
