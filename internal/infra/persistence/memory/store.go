// Package memory is a process-local ledger backend for tests and single-node demos.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Store keeps products, chains and outbox events in maps guarded by one RWMutex.
type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.ProductState
	byFingerprint map[string]string
	chains        map[string][]*domain.ActivityRecord
	outbox        map[string]*contracts.OutboxEvent
	outboxOrder   []string
	claimedAt     map[string]time.Time
	closed        bool
}

var _ contracts.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		products:      make(map[string]domain.ProductState),
		byFingerprint: make(map[string]string),
		chains:        make(map[string][]*domain.ActivityRecord),
		outbox:        make(map[string]*contracts.OutboxEvent),
		claimedAt:     make(map[string]time.Time),
	}
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("memory store is closed: %w", contracts.ErrTransient)
	}
	return nil
}

// GetByID reconstructs the product aggregate.
func (s *Store) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	state, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return domain.ReconstructProduct(state), nil
}

// FindIDByFingerprint returns the product registered under fingerprint.
func (s *Store) FindIDByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return "", err
	}

	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return "", domain.ErrProductNotFound
	}
	return id, nil
}

// Exists checks if a product exists.
func (s *Store) Exists(ctx context.Context, productID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}

	_, ok := s.products[productID]
	return ok, nil
}

// Head returns the last record of the chain.
func (s *Store) Head(ctx context.Context, productID string) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	chain := s.chains[productID]
	if len(chain) == 0 {
		return nil, domain.ErrProductNotFound
	}
	return chain[len(chain)-1].Copy(), nil
}

// Records yields copies of the chain in pages, releasing the lock between pages.
func (s *Store) Records(ctx context.Context, productID string, through int64) iter.Seq2[*domain.ActivityRecord, error] {
	return func(yield func(*domain.ActivityRecord, error) bool) {
		var next int64
		for next <= through {
			page, err := s.recordPage(ctx, productID, next, through)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			next = page[len(page)-1].Sequence + 1
		}
	}
}

func (s *Store) recordPage(ctx context.Context, productID string, from, through int64) ([]*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	// Ordered by sequence like the SQL backends, so a rewritten sequence
	// cannot make the page loop revisit records.
	var page []*domain.ActivityRecord
	for _, rec := range s.chains[productID] {
		if rec.Sequence >= from && rec.Sequence <= through {
			page = append(page, rec)
		}
	}
	slices.SortStableFunc(page, func(a, b *domain.ActivityRecord) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	if len(page) > contracts.RecordPageSize {
		page = page[:contracts.RecordPageSize]
	}
	for i, rec := range page {
		page[i] = rec.Copy()
	}
	return page, nil
}

// Commit applies the plan under the write lock after checking every precondition.
func (s *Store) Commit(ctx context.Context, plan *contracts.CommitPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if plan.IsEmpty() {
		return nil
	}

	if p := plan.InsertProduct; p != nil {
		if _, ok := s.products[p.ID()]; ok {
			return domain.ErrProductAlreadyExists
		}
		if _, ok := s.byFingerprint[p.Fingerprint()]; ok {
			return domain.ErrDuplicateFingerprint
		}
	}

	if p := plan.UpdateProduct; p != nil {
		current, ok := s.products[p.ID()]
		if !ok {
			return domain.ErrProductNotFound
		}
		if current.Head != plan.ExpectedHead {
			return contracts.ErrHeadConflict
		}
	}

	lengths := make(map[string]int64)
	for _, rec := range plan.Records {
		n, ok := lengths[rec.ProductID]
		if !ok {
			n = int64(len(s.chains[rec.ProductID]))
		}
		if rec.Sequence != n {
			return contracts.ErrHeadConflict
		}
		lengths[rec.ProductID] = n + 1
	}

	if p := plan.InsertProduct; p != nil {
		s.products[p.ID()] = p.State()
		s.byFingerprint[p.Fingerprint()] = p.ID()
	}
	if p := plan.UpdateProduct; p != nil {
		s.products[p.ID()] = p.State()
	}
	for _, rec := range plan.Records {
		s.chains[rec.ProductID] = append(s.chains[rec.ProductID], rec.Copy())
	}
	for _, e := range plan.Events {
		c := *e
		s.outbox[c.EventID] = &c
		s.outboxOrder = append(s.outboxOrder, c.EventID)
	}

	return nil
}

// ClaimPending moves claimable events to processing, oldest first.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*contracts.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	staleBefore := now.Add(-lease)
	var claimed []*contracts.OutboxEvent
	for _, id := range s.outboxOrder {
		if len(claimed) >= limit {
			break
		}
		e, ok := s.outbox[id]
		if !ok {
			continue
		}
		stale := e.Status == contracts.OutboxStatusProcessing && s.claimedAt[id].Before(staleBefore)
		if e.Status != contracts.OutboxStatusPending && !stale {
			continue
		}
		e.Status = contracts.OutboxStatusProcessing
		s.claimedAt[id] = now
		c := *e
		claimed = append(claimed, &c)
	}
	return claimed, nil
}

// MarkCompleted records a successful delivery.
func (s *Store) MarkCompleted(ctx context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	e, ok := s.outbox[eventID]
	if !ok {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	processed := at.UTC()
	e.Status = contracts.OutboxStatusCompleted
	e.ProcessedAt = &processed
	e.ErrorMessage = ""
	delete(s.claimedAt, eventID)
	return nil
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(ctx context.Context, eventID string, reason string, maxRetries int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	e, ok := s.outbox[eventID]
	if !ok {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	e.RetryCount++
	e.ErrorMessage = reason
	e.Status = contracts.OutboxStatusPending
	if e.RetryCount >= maxRetries {
		e.Status = contracts.OutboxStatusFailed
	}
	delete(s.claimedAt, eventID)
	return nil
}

// PurgeCompleted deletes completed events processed before olderThan.
func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var purged int64
	s.outboxOrder = slices.DeleteFunc(s.outboxOrder, func(id string) bool {
		e := s.outbox[id]
		if e.Status != contracts.OutboxStatusCompleted || e.ProcessedAt == nil || !e.ProcessedAt.Before(olderThan) {
			return false
		}
		delete(s.outbox, id)
		purged++
		return true
	})
	return purged, nil
}

// ListEvents lists outbox events, newest first.
func (s *Store) ListEvents(ctx context.Context, filter *contracts.EventFilter) ([]*contracts.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var out []*contracts.OutboxEvent
	for i := len(s.outboxOrder) - 1; i >= 0 && (filter.Limit <= 0 || len(out) < filter.Limit); i-- {
		e := s.outbox[s.outboxOrder[i]]
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.AggregateID != "" && e.AggregateID != filter.AggregateID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// GetProductByID retrieves a product DTO by ID.
func (s *Store) GetProductByID(ctx context.Context, productID string) (*contracts.ProductDTO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	state, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return contracts.ProductDTOFromState(state), nil
}

// ListProducts lists products ordered by identifier.
func (s *Store) ListProducts(ctx context.Context, filter *contracts.ListFilter) (*contracts.ListResult, error) {
	after, err := contracts.DecodePageToken(filter.PageToken)
	if err != nil {
		return nil, err
	}
	pageSize := contracts.NormalizePageSize(filter.PageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	result := &contracts.ListResult{}
	for _, id := range ids {
		state := s.products[id]
		if filter.Category != "" && state.Category != filter.Category {
			continue
		}
		if filter.Status != "" && string(state.Status) != filter.Status {
			continue
		}
		if filter.Owner != "" && state.Owner != filter.Owner {
			continue
		}
		if len(result.Products) == pageSize {
			result.NextPageToken = contracts.EncodePageToken(result.Products[pageSize-1].ProductID)
			break
		}
		result.Products = append(result.Products, contracts.ProductDTOFromState(state))
	}
	return result, nil
}

// RewriteRecord edits a stored record in place, bypassing every ledger check.
// It exists to simulate tampering.
func (s *Store) RewriteRecord(productID string, sequence int64, fn func(*domain.ActivityRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.chains[productID] {
		if rec.Sequence == sequence {
			fn(rec)
			return nil
		}
	}
	return fmt.Errorf("record %s/%d not found", productID, sequence)
}

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkOpen(ctx)
}

// Close marks the store closed. Later calls fail with contracts.ErrTransient.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
