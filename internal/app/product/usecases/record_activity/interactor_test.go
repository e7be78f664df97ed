package record_activity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/record_activity"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/memory"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
)

func TestRecordActivity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := testutil.NewSteppingClock()
	app := testutil.NewAppender(store, clk)

	reg, err := register_product.NewInteractor(store, app, clk).Execute(ctx, testutil.NewRegistrationBuilder().Build())
	require.NoError(t, err)
	id := reg.Product.ID()

	uc := record_activity.NewInteractor(app)

	rec, err := uc.Execute(ctx, &record_activity.Request{
		ProductID: id,
		EventType: "quality_check",
		Location:  "Medellín lab",
		Handler:   "QA team",
		Details:   "moisture 11%",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Sequence)
	assert.Equal(t, reg.Genesis.Hash, rec.PreviousHash)

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusManufactured, stored.Status())
	assert.Equal(t, rec.Head(), stored.Head())

	testutil.AssertOutboxEvent(t, store, id, "product.activity_recorded")

	t.Run("reserved type", func(t *testing.T) {
		_, err := uc.Execute(ctx, &record_activity.Request{ProductID: id, EventType: "delivered"})
		assert.ErrorIs(t, err, domain.ErrInvalidEventType)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := uc.Execute(ctx, &record_activity.Request{ProductID: "missing", EventType: "customs_hold"})
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	assert.Len(t, testutil.CollectChain(t, store, id), 2)
}
