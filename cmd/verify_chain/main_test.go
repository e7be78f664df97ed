package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/memory"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
)

func TestRun(t *testing.T) {
	color.NoColor = true
	ctx := context.Background()

	store := memory.New()
	clk := testutil.NewSteppingClock()
	good := testutil.SeedProduct(t, store, clk, domain.StatusInTransit)
	bad := testutil.SeedRegistration(t, store, clk,
		testutil.NewRegistrationBuilder().WithProductID("tea-042").WithBatch("BCH-2024-042").Build(),
		domain.StatusInTransit, domain.StatusStored)

	var out bytes.Buffer
	require.NoError(t, run(ctx, store, &out, good.ID(), false))
	assert.Contains(t, out.String(), "✓ "+good.ID())
	assert.Contains(t, out.String(), "1 products verified, 0 with integrity failures")

	require.NoError(t, store.RewriteRecord(bad.ID(), 1, func(r *domain.ActivityRecord) { r.Location = "Nowhere" }))

	out.Reset()
	err := run(ctx, store, &out, "", true)
	assert.ErrorIs(t, err, errIntegrity)
	assert.NotContains(t, out.String(), good.ID(), "quiet hides valid products")
	assert.Contains(t, out.String(), "✗ "+bad.ID())
	assert.Contains(t, out.String(), string(domain.FailureRecordHashMismatch)+" at 1")
	assert.Contains(t, out.String(), string(domain.FailureChainLinkBroken)+" at 2")
	assert.Contains(t, out.String(), "2 products verified, 1 with integrity failures")
}

func TestRun_UnknownProduct(t *testing.T) {
	err := run(context.Background(), memory.New(), &bytes.Buffer{}, "missing", false)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
