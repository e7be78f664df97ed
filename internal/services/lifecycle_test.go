package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_history"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/verify_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/transition_status"
	"github.com/light-bringer/supplytrace-ledger/internal/config"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/logging"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
)

func openStores(t *testing.T) map[string]contracts.Store {
	t.Helper()
	ctx := context.Background()

	stores := map[string]contracts.Store{}
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		cfg := config.Config{StoreDriver: driver, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")}
		store, err := services.OpenStore(ctx, cfg)
		require.NoError(t, err, driver)
		t.Cleanup(func() { _ = store.Close() })
		stores[driver] = store
	}
	return stores
}

func TestOrganicCoffeeBeansLifecycle(t *testing.T) {
	for driver, store := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			app := services.NewApplication(store, nil, testutil.NewSteppingClock())

			reg, err := app.RegisterProduct.Execute(ctx, &register_product.Request{
				ProductID:      "coffee-" + driver,
				Name:           "Organic Coffee Beans",
				BatchNumber:    "BCH-2024-001",
				ManufacturedAt: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
				Origin:         "Colombia",
				Category:       "food",
				Owner:          "Andes Growers Co-op",
			})
			require.NoError(t, err)
			id := reg.Product.ID()
			assert.Equal(t, domain.StatusManufactured, reg.Product.Status())

			history := func() []*domain.ActivityRecord {
				records, err := app.GetHistory.Execute(ctx, &get_history.Request{ProductID: id})
				require.NoError(t, err)
				return records
			}
			require.Len(t, history(), 1)

			shipped, err := app.TransitionStatus.Execute(ctx, &transition_status.Request{
				ProductID: id,
				NewStatus: domain.StatusInTransit,
				Location:  "Port of Cartagena",
			})
			require.NoError(t, err)
			assert.Equal(t, domain.StatusInTransit, shipped.Product.Status())

			chain := history()
			require.Len(t, chain, 2)
			assert.Equal(t, chain[0].Hash, chain[1].PreviousHash)
			assert.Equal(t, "Port of Cartagena", chain[1].Location)

			_, err = app.TransitionStatus.Execute(ctx, &transition_status.Request{ProductID: id, NewStatus: domain.StatusDelivered})
			require.NoError(t, err)
			require.Len(t, history(), 3)

			result, err := app.VerifyProduct.Execute(ctx, &verify_product.Request{ProductID: id})
			require.NoError(t, err)
			assert.True(t, result.Valid, "%+v", result.Failures)
			assert.Equal(t, 3, result.RecordCount)

			// Delivered is terminal and a refused transition writes nothing.
			for _, to := range []domain.ProductStatus{domain.StatusManufactured, domain.StatusInTransit, domain.StatusStored, domain.StatusDelivered} {
				_, err := app.TransitionStatus.Execute(ctx, &transition_status.Request{ProductID: id, NewStatus: to})
				assert.ErrorIs(t, err, domain.ErrInvalidTransition, to)
			}
			assert.Len(t, history(), 3)
		})
	}
}

func TestNewServiceOptions(t *testing.T) {
	ctx := context.Background()
	cfg := config.Load()
	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")
	cfg.ArchiveDriver = config.ArchiveFS
	cfg.ArchiveDir = t.TempDir()
	cfg.OutboxEnabled = true

	opts, err := services.NewServiceOptions(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = opts.Close() })

	assert.NotNil(t, opts.LedgerHandler)
	assert.NotNil(t, opts.HTTPHandler)
	assert.NotNil(t, opts.Dispatcher)
	assert.NotNil(t, opts.App.ExportChain)
	assert.NoError(t, opts.Store.Ping(ctx))
}

func TestNewServiceOptions_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Load()
	cfg.StoreDriver = "mysql"

	_, err := services.NewServiceOptions(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "unknown STORE_DRIVER")
}
