package register_product_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/memory"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
)

func setup() (*register_product.Interactor, *memory.Store) {
	store := memory.New()
	clk := testutil.NewSteppingClock()
	return register_product.NewInteractor(store, testutil.NewAppender(store, clk), clk), store
}

func TestRegisterProduct(t *testing.T) {
	ctx := context.Background()
	uc, store := setup()

	req := testutil.NewRegistrationBuilder().WithProductID("coffee-001").Build()
	resp, err := uc.Execute(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "coffee-001", resp.Product.ID())
	assert.Equal(t, domain.StatusManufactured, resp.Product.Status())
	assert.Len(t, resp.Product.Fingerprint(), 64)
	assert.Equal(t, int64(0), resp.Genesis.Sequence)
	assert.Equal(t, domain.EventManufactured, resp.Genesis.EventType)
	assert.Equal(t, domain.GenesisPreviousHash, resp.Genesis.PreviousHash)

	stored, err := store.GetByID(ctx, "coffee-001")
	require.NoError(t, err)
	assert.Equal(t, resp.Product.Fingerprint(), stored.Fingerprint())
	assert.Equal(t, "Single-origin arabica, washed process", stored.Description())

	chain := testutil.CollectChain(t, store, "coffee-001")
	require.Len(t, chain, 1)
	assert.Equal(t, resp.Genesis, chain[0])

	event := testutil.AssertOutboxEvent(t, store, "coffee-001", "product.registered")
	assert.Contains(t, event.Payload, resp.Product.Fingerprint())
}

func TestRegisterProduct_InvalidData(t *testing.T) {
	ctx := context.Background()
	uc, store := setup()

	req := testutil.NewRegistrationBuilder().WithProductID("coffee-001").WithOwner("").Build()
	_, err := uc.Execute(ctx, req)

	var invalid *domain.InvalidRegistrationDataError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.FieldOwner, invalid.Field)

	exists, err := store.Exists(ctx, "coffee-001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegisterProduct_DuplicateFingerprint(t *testing.T) {
	ctx := context.Background()
	uc, _ := setup()

	builder := testutil.NewRegistrationBuilder().WithProductID("coffee-001")
	_, err := uc.Execute(ctx, builder.Build())
	require.NoError(t, err)

	_, err = uc.Execute(ctx, builder.Build())
	assert.ErrorIs(t, err, domain.ErrDuplicateFingerprint)
}

func TestRegisterProduct_IdentifierTaken(t *testing.T) {
	ctx := context.Background()
	uc, _ := setup()

	_, err := uc.Execute(ctx, testutil.NewRegistrationBuilder().WithProductID("coffee-001").Build())
	require.NoError(t, err)

	_, err = uc.Execute(ctx, testutil.NewRegistrationBuilder().WithProductID("coffee-001").WithBatch("BCH-2024-002").Build())
	assert.ErrorIs(t, err, domain.ErrProductAlreadyExists)
}

func TestRegisterProduct_SameBatchDifferentIdentifiers(t *testing.T) {
	ctx := context.Background()
	uc, _ := setup()

	first, err := uc.Execute(ctx, testutil.NewRegistrationBuilder().Build())
	require.NoError(t, err)
	second, err := uc.Execute(ctx, testutil.NewRegistrationBuilder().Build())
	require.NoError(t, err)

	assert.NotEqual(t, first.Product.Fingerprint(), second.Product.Fingerprint())
}
