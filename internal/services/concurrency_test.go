package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_history"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/verify_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/record_activity"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/transition_status"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
)

// TestConcurrentDelivery races two deliveries of the same product.
// Expected: one commits, the other sees a delivered product and is rejected.
func TestConcurrentDelivery(t *testing.T) {
	for driver, store := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			clk := testutil.NewSteppingClock()
			app := services.NewApplication(store, nil, clk)
			product := testutil.SeedProduct(t, store, clk, domain.StatusInTransit, domain.StatusStored)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = app.TransitionStatus.Execute(ctx, &transition_status.Request{
						ProductID: product.ID(),
						NewStatus: domain.StatusDelivered,
						Handler:   fmt.Sprintf("courier-%d", i),
					})
				}()
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			}
			assert.Equal(t, 1, succeeded, "exactly one delivery should commit")

			chain, err := app.GetHistory.Execute(ctx, &get_history.Request{ProductID: product.ID()})
			require.NoError(t, err)
			assert.Len(t, chain, 4)
		})
	}
}

// TestConcurrentActivities appends from many goroutines at once and checks
// the chain stays gapless and verifiable.
func TestConcurrentActivities(t *testing.T) {
	const writers = 12

	for driver, store := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			clk := testutil.NewSteppingClock()
			app := services.NewApplication(store, nil, clk)
			product := testutil.SeedProduct(t, store, clk, domain.StatusInTransit)

			g, gctx := errgroup.WithContext(ctx)
			for i := range writers {
				g.Go(func() error {
					_, err := app.RecordActivity.Execute(gctx, &record_activity.Request{
						ProductID: product.ID(),
						EventType: "temperature_check",
						Location:  "Reefer 4",
						Details:   fmt.Sprintf("reading %d: 3.%d C", i, i),
					})
					return err
				})
			}
			require.NoError(t, g.Wait())

			chain, err := app.GetHistory.Execute(ctx, &get_history.Request{ProductID: product.ID()})
			require.NoError(t, err)
			require.Len(t, chain, writers+2)
			for i, rec := range chain {
				assert.Equal(t, int64(i), rec.Sequence)
				if i > 0 {
					assert.Equal(t, chain[i-1].Hash, rec.PreviousHash)
				}
			}

			result, err := app.VerifyProduct.Execute(ctx, &verify_product.Request{ProductID: product.ID()})
			require.NoError(t, err)
			assert.True(t, result.Valid, "%+v", result.Failures)
		})
	}
}
