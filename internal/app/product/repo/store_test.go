package repo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/storetest"
	"github.com/light-bringer/supplytrace-ledger/internal/models/m_activity"
)

// newTestStore creates a fresh database on the emulator for each test.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SPANNER_EMULATOR_HOST") == "" {
		t.Skip("SPANNER_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	cfg := DatabaseConfig{
		ProjectID:  "test-project",
		InstanceID: "test-instance",
		// database ids are at most 30 characters
		DatabaseID: "ledger-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
	}
	require.NoError(t, EnsureInstance(ctx, cfg))
	_, err := Migrate(ctx, cfg)
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { _ = DropDatabase(context.Background(), cfg) })

	s, err := NewStore(ctx, cfg.DatabasePath())
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contracts.Store {
		return newTestStore(t)
	})
}

func TestStore_TamperingIsDetected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	p, head := storetest.Register(t, ctx, s, storetest.Registration("p-1"))
	for i := 0; i < 3; i++ {
		head = storetest.Append(t, ctx, s, p, head, head.Timestamp.Add(time.Hour))
	}

	_, err := s.Client().Apply(ctx, []*spanner.Mutation{
		spanner.Update(m_activity.TableName,
			[]string{m_activity.ProductID, m_activity.Sequence, m_activity.Handler},
			[]interface{}{"p-1", int64(1), "mallory"}),
	})
	require.NoError(t, err)

	loaded, err := s.GetByID(ctx, "p-1")
	require.NoError(t, err)
	result := domain.Verify(loaded, s.Records(ctx, "p-1", loaded.Head().Sequence))

	assert.False(t, result.Valid)
	assert.Len(t, result.FailuresOf(domain.FailureRecordHashMismatch), 1)
	assert.Len(t, result.FailuresOf(domain.FailureChainLinkBroken), 1)
}

func TestStore_LongChainPages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	p, head := storetest.Register(t, ctx, s, storetest.Registration("p-1"))
	n := contracts.RecordPageSize + 4
	for i := 1; i < n; i++ {
		head = storetest.Append(t, ctx, s, p, head, head.Timestamp.Add(time.Minute))
	}

	var seqs []int64
	for rec, err := range s.Records(ctx, "p-1", head.Sequence) {
		require.NoError(t, err)
		seqs = append(seqs, rec.Sequence)
	}
	require.Len(t, seqs, n)
	assert.Equal(t, int64(n-1), seqs[len(seqs)-1])
}
