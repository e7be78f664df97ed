package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contracts.Store {
		return New()
	})
}

func TestStore_RewriteRecordIsDetected(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, genesis := storetest.Register(t, ctx, s, storetest.Registration("p-1"))

	require.NoError(t, s.RewriteRecord("p-1", 0, func(r *domain.ActivityRecord) {
		r.Location = "Peru"
	}))

	result := domain.Verify(p, s.Records(ctx, "p-1", genesis.Sequence))
	assert.False(t, result.Valid)
	assert.Len(t, result.FailuresOf(domain.FailureRecordHashMismatch), 1)
}

func TestStore_RecordsFollowSequenceOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, head := storetest.Register(t, ctx, s, storetest.Registration("p-1"))
	for i := 0; i < 3; i++ {
		next, err := domain.Link(head, "p-1", domain.ActivityEvent{Type: "quality_check"}, head.Timestamp.Add(time.Second))
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, &contracts.CommitPlan{Records: []*domain.ActivityRecord{next}}))
		head = next
	}

	require.NoError(t, s.RewriteRecord("p-1", 3, func(r *domain.ActivityRecord) {
		r.Sequence = 1
	}))

	var got []int64
	for rec, err := range s.Records(ctx, "p-1", 3) {
		require.NoError(t, err)
		got = append(got, rec.Sequence)
	}
	assert.Equal(t, []int64{0, 1, 1, 2}, got, "every stored record is read exactly once")
}

func TestStore_ClosedIsTransient(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	_, err := s.GetByID(context.Background(), "p-1")
	assert.ErrorIs(t, err, contracts.ErrTransient)
}
