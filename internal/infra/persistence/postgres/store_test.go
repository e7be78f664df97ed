package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/storetest"
)

// newTestStore opens a store on a fresh schema so every test starts empty.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	schemaName := "ledger_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schemaName))
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schemaName

	s, err := NewStoreWithConfig(ctx, cfg)
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
	head = storetest.Append(t, ctx, s, p, head, head.Timestamp.Add(1000))

	_, err := s.Pool().Exec(ctx, `UPDATE activity_records SET details = 'edited' WHERE product_id = $1 AND sequence = 0`, "p-1")
	require.NoError(t, err)

	result := domain.Verify(p, s.Records(ctx, "p-1", head.Sequence))
	assert.False(t, result.Valid)
	assert.Len(t, result.FailuresOf(domain.FailureRecordHashMismatch), 1)
	assert.Len(t, result.FailuresOf(domain.FailureChainLinkBroken), 1)
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(context.Canceled), context.Canceled)
	assert.NotErrorIs(t, mapErr(context.Canceled), contracts.ErrTransient)
}
