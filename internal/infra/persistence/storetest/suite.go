// Package storetest holds the behavioural tests every ledger backend must pass.
package storetest

import (
	"context"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) contracts.Store

var baseTime = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

// Registration returns valid registration data for id.
func Registration(id string) domain.RegistrationData {
	return domain.RegistrationData{
		ProductID:      id,
		Name:           "Organic Coffee Beans",
		BatchNumber:    "BCH-" + id,
		ManufacturedAt: baseTime,
		Origin:         "Colombia",
		Category:       "food",
		Owner:          "Andes Growers Co-op",
	}
}

// Register commits a new product and returns it with its genesis record.
func Register(t *testing.T, ctx context.Context, s contracts.Store, data domain.RegistrationData) (*domain.Product, *domain.ActivityRecord) {
	t.Helper()

	p, genesis, err := domain.NewProduct(data, "", baseTime.Add(time.Hour))
	require.NoError(t, err)

	plan := contracts.NewRegistrationPlan(p, genesis)
	events, err := contracts.EnrichEvents(p.DomainEvents(), baseTime)
	require.NoError(t, err)
	plan.AddEvents(events...)

	require.NoError(t, s.Commit(ctx, plan))
	p.ClearEvents()
	return p, genesis
}

// Append commits a custom activity on p and returns the new head.
func Append(t *testing.T, ctx context.Context, s contracts.Store, p *domain.Product, head *domain.ActivityRecord, at time.Time) *domain.ActivityRecord {
	t.Helper()

	expected := p.Head()
	rec, err := p.RecordActivity("inspection", domain.ActivityDetails{Location: "warehouse", Details: fmt.Sprint(head.Sequence + 1)}, head, at)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, contracts.NewAppendPlan(p, expected, rec)))
	return rec
}

func collect(t *testing.T, s contracts.Store, ctx context.Context, id string, through int64) []*domain.ActivityRecord {
	t.Helper()

	var out []*domain.ActivityRecord
	for rec, err := range s.Records(ctx, id, through) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) contracts.Store {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("RegisterAndLoad", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p, genesis := Register(t, ctx, s, Registration("p-1"))

		loaded, err := s.GetByID(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, p.State(), loaded.State())

		id, err := s.FindIDByFingerprint(ctx, p.Fingerprint())
		require.NoError(t, err)
		assert.Equal(t, "p-1", id)

		exists, err := s.Exists(ctx, "p-1")
		require.NoError(t, err)
		assert.True(t, exists)

		head, err := s.Head(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, genesis, head)
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		_, err := s.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)

		_, err = s.FindIDByFingerprint(ctx, "00")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)

		_, err = s.Head(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)

		_, err = s.GetProductByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)

		exists, err := s.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)

		assert.Empty(t, collect(t, s, ctx, "missing", 10))
	})

	t.Run("DuplicateRegistration", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		original, _ := Register(t, ctx, s, Registration("p-1"))

		sameID := Registration("p-1")
		sameID.BatchNumber = "other"
		p, genesis, err := domain.NewProduct(sameID, "", baseTime)
		require.NoError(t, err)
		err = s.Commit(ctx, contracts.NewRegistrationPlan(p, genesis))
		assert.ErrorIs(t, err, domain.ErrProductAlreadyExists)

		// Same fingerprint under a new identifier is impossible because the
		// identifier is fingerprinted, so forge the collision directly.
		state := p.State()
		state.ID = "p-2"
		state.Fingerprint = original.Fingerprint()
		forged := domain.ReconstructProduct(state)
		forgedGenesis, err := domain.Link(nil, "p-2", domain.ActivityEvent{Type: domain.EventManufactured}, baseTime)
		require.NoError(t, err)
		err = s.Commit(ctx, contracts.NewRegistrationPlan(forged, forgedGenesis))
		assert.ErrorIs(t, err, domain.ErrDuplicateFingerprint)

		exists, err := s.Exists(ctx, "p-2")
		require.NoError(t, err)
		assert.False(t, exists, "failed registration must not leave a product behind")
	})

	t.Run("AppendAdvancesHead", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p, head := Register(t, ctx, s, Registration("p-1"))

		rec, err := p.ApplyTransition(domain.StatusInTransit, domain.ActivityDetails{Location: "Port of Cartagena"}, head, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, contracts.NewAppendPlan(p, head.Head(), rec)))

		loaded, err := s.GetByID(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInTransit, loaded.Status())
		assert.Equal(t, rec.Head(), loaded.Head())

		chain := collect(t, s, ctx, "p-1", loaded.Head().Sequence)
		require.Len(t, chain, 2)
		assert.Equal(t, head.Hash, chain[1].PreviousHash)
		assert.Equal(t, rec, chain[1])
	})

	t.Run("StaleHeadIsRejected", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p, head := Register(t, ctx, s, Registration("p-1"))

		winner := domain.ReconstructProduct(p.State())
		loser := domain.ReconstructProduct(p.State())

		first, err := winner.ApplyTransition(domain.StatusInTransit, domain.ActivityDetails{}, head, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		second, err := loser.ApplyTransition(domain.StatusStored, domain.ActivityDetails{}, head, baseTime.Add(2*time.Hour))
		require.NoError(t, err)

		require.NoError(t, s.Commit(ctx, contracts.NewAppendPlan(winner, head.Head(), first)))
		err = s.Commit(ctx, contracts.NewAppendPlan(loser, head.Head(), second))
		assert.ErrorIs(t, err, contracts.ErrHeadConflict)

		loaded, err := s.GetByID(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInTransit, loaded.Status())
		assert.Len(t, collect(t, s, ctx, "p-1", 10), 2)
	})

	t.Run("RecordsStreamsAcrossPages", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p, head := Register(t, ctx, s, Registration("p-1"))

		total := contracts.RecordPageSize + 20
		at := baseTime.Add(2 * time.Hour)
		for i := 1; i < total; i++ {
			at = at.Add(time.Second)
			head = Append(t, ctx, s, p, head, at)
		}

		chain := collect(t, s, ctx, "p-1", head.Sequence)
		require.Len(t, chain, total)
		for i, rec := range chain {
			assert.Equal(t, int64(i), rec.Sequence)
		}

		result := domain.Verify(p, s.Records(ctx, "p-1", head.Sequence))
		assert.True(t, result.Valid, "%+v", result.Failures)
		assert.Equal(t, total, result.RecordCount)
	})

	t.Run("RecordsIsBoundedAndRestartable", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		p, head := Register(t, ctx, s, Registration("p-1"))
		for i := 1; i <= 3; i++ {
			head = Append(t, ctx, s, p, head, baseTime.Add(time.Duration(i)*time.Hour))
		}

		seq := s.Records(ctx, "p-1", 1)
		assert.Len(t, collectSeq(t, seq), 2)

		Append(t, ctx, s, p, head, baseTime.Add(10*time.Hour))
		assert.Len(t, collectSeq(t, seq), 2, "through bounds the snapshot even after appends")

		for rec, err := range s.Records(ctx, "p-1", 10) {
			require.NoError(t, err)
			if rec.Sequence == 2 {
				break
			}
		}
		assert.Len(t, collect(t, s, ctx, "p-1", 10), 5)
	})

	t.Run("ReadModel", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		for i := 0; i < 5; i++ {
			d := Registration(fmt.Sprintf("p-%d", i))
			if i%2 == 1 {
				d.Category = "textiles"
			}
			Register(t, ctx, s, d)
		}

		dto, err := s.GetProductByID(ctx, "p-3")
		require.NoError(t, err)
		assert.Equal(t, "textiles", dto.Category)
		assert.Equal(t, "manufactured", dto.Status)
		assert.Equal(t, int64(0), dto.HeadSequence)
		assert.Equal(t, baseTime, dto.ManufacturedAt)

		page1, err := s.ListProducts(ctx, &contracts.ListFilter{PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page1.Products, 2)
		assert.Equal(t, "p-0", page1.Products[0].ProductID)
		require.NotEmpty(t, page1.NextPageToken)

		page2, err := s.ListProducts(ctx, &contracts.ListFilter{PageSize: 2, PageToken: page1.NextPageToken})
		require.NoError(t, err)
		require.Len(t, page2.Products, 2)
		assert.Equal(t, "p-2", page2.Products[0].ProductID)

		page3, err := s.ListProducts(ctx, &contracts.ListFilter{PageSize: 2, PageToken: page2.NextPageToken})
		require.NoError(t, err)
		assert.Len(t, page3.Products, 1)
		assert.Empty(t, page3.NextPageToken)

		textiles, err := s.ListProducts(ctx, &contracts.ListFilter{Category: "textiles"})
		require.NoError(t, err)
		assert.Len(t, textiles.Products, 2)
	})

	t.Run("Outbox", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		Register(t, ctx, s, Registration("p-1"))
		Register(t, ctx, s, Registration("p-2"))

		now := baseTime.Add(24 * time.Hour)

		claimed, err := s.ClaimPending(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, "product.registered", claimed[0].EventType)
		assert.Equal(t, contracts.OutboxStatusProcessing, claimed[0].Status)

		again, err := s.ClaimPending(ctx, now.Add(time.Second), 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, again, "claimed events are leased")

		require.NoError(t, s.MarkCompleted(ctx, claimed[0].EventID, now))
		require.NoError(t, s.MarkFailed(ctx, claimed[1].EventID, "broker down", 2))

		retry, err := s.ClaimPending(ctx, now.Add(2*time.Second), 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, retry, 1)
		assert.Equal(t, claimed[1].EventID, retry[0].EventID)
		assert.Equal(t, int64(1), retry[0].RetryCount)

		require.NoError(t, s.MarkFailed(ctx, retry[0].EventID, "broker down", 2))

		failed, err := s.ListEvents(ctx, &contracts.EventFilter{Status: contracts.OutboxStatusFailed, Limit: 10})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "broker down", failed[0].ErrorMessage)

		byAggregate, err := s.ListEvents(ctx, &contracts.EventFilter{AggregateID: claimed[0].AggregateID, Limit: 10})
		require.NoError(t, err)
		require.Len(t, byAggregate, 1)
		assert.Equal(t, contracts.OutboxStatusCompleted, byAggregate[0].Status)
		assert.NotNil(t, byAggregate[0].ProcessedAt)

		purged, err := s.PurgeCompleted(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)

		all, err := s.ListEvents(ctx, &contracts.EventFilter{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("StaleClaimIsReclaimed", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		Register(t, ctx, s, Registration("p-1"))

		now := baseTime.Add(24 * time.Hour)
		first, err := s.ClaimPending(ctx, now, 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, first, 1)

		later, err := s.ClaimPending(ctx, now.Add(2*time.Minute), 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, later, 1)
		assert.Equal(t, first[0].EventID, later[0].EventID)
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func collectSeq(t *testing.T, seq iter.Seq2[*domain.ActivityRecord, error]) []*domain.ActivityRecord {
	t.Helper()

	var out []*domain.ActivityRecord
	for rec, err := range seq {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}
