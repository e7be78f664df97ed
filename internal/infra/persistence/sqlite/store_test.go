package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contracts.Store {
		return newTestStore(t)
	})
}

func TestStore_InMemory(t *testing.T) {
	s, err := NewStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Register(t, context.Background(), s, storetest.Registration("p-1"))
	exists, err := s.Exists(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := NewStore(ctx, path)
	require.NoError(t, err)
	p, _ := storetest.Register(t, ctx, s, storetest.Registration("p-1"))
	require.NoError(t, s.Close())

	reloaded, err := NewStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reloaded.Close() })

	loaded, err := reloaded.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, p.State(), loaded.State())

	result := domain.Verify(loaded, reloaded.Records(ctx, "p-1", loaded.Head().Sequence))
	assert.True(t, result.Valid, "%+v", result.Failures)
}

func TestStore_TamperingIsDetected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	p, head := storetest.Register(t, ctx, s, storetest.Registration("p-1"))
	for i := 0; i < 3; i++ {
		head = storetest.Append(t, ctx, s, p, head, head.Timestamp.Add(time.Second))
	}

	_, err := s.DB().ExecContext(ctx, `UPDATE activity_records SET handler = 'forged' WHERE product_id = ? AND sequence = 1`, "p-1")
	require.NoError(t, err)

	result := domain.Verify(p, s.Records(ctx, "p-1", head.Sequence))
	assert.False(t, result.Valid)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, domain.FailureRecordHashMismatch, result.Failures[0].Kind)
	assert.Equal(t, int64(1), result.Failures[0].Sequence)
	assert.Equal(t, domain.FailureChainLinkBroken, result.Failures[1].Kind)
	assert.Equal(t, int64(2), result.Failures[1].Sequence)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM activity_records WHERE product_id = ? AND sequence = 3`, "p-1")
	require.NoError(t, err)

	result = domain.Verify(p, s.Records(ctx, "p-1", head.Sequence))
	assert.NotEmpty(t, result.FailuresOf(domain.FailureHeadMismatch), "truncated tail")
}

func TestStore_ClosedIsTransient(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetByID(context.Background(), "p-1")
	assert.ErrorIs(t, err, contracts.ErrTransient)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, Migrate(context.Background(), s.DB()))

	var name string
	require.NoError(t, s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, "activity_records").Scan(&name))
	assert.Equal(t, "activity_records", name)
}
