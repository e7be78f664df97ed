package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/appender"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/keylock"
)

// AssertOutboxEvent verifies an outbox event exists for the aggregate with the given event type.
func AssertOutboxEvent(t *testing.T, events contracts.EventsReadModel, aggregateID, eventType string) *contracts.OutboxEvent {
	t.Helper()

	found, err := events.ListEvents(context.Background(), &contracts.EventFilter{
		AggregateID: aggregateID,
		EventType:   eventType,
		Limit:       1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, found, "outbox event %s not found for %s", eventType, aggregateID)
	return found[0]
}

// CollectChain reads a product's full chain.
func CollectChain(t *testing.T, chains contracts.ChainRepository, productID string) []*domain.ActivityRecord {
	t.Helper()

	var out []*domain.ActivityRecord
	for rec, err := range chains.Records(context.Background(), productID, 1<<40) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

// NewAppender wires an Appender over store with a fast retry policy.
func NewAppender(store contracts.Store, clk clock.Clock) *appender.Appender {
	return appender.New(store, store, store, keylock.New(), clk, appender.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond})
}

// SeedProduct registers the default product and walks it through path. It
// returns the product as stored after the last transition.
func SeedProduct(t *testing.T, store contracts.Store, clk clock.Clock, path ...domain.ProductStatus) *domain.Product {
	t.Helper()
	return SeedRegistration(t, store, clk, NewRegistrationBuilder().Build(), path...)
}

// SeedRegistration is SeedProduct for a caller-built registration.
func SeedRegistration(t *testing.T, store contracts.Store, clk clock.Clock, req *register_product.Request, path ...domain.ProductStatus) *domain.Product {
	t.Helper()
	ctx := context.Background()

	product, genesis, err := domain.NewProduct(domain.RegistrationData{
		ProductID:      req.ProductID,
		Name:           req.Name,
		BatchNumber:    req.BatchNumber,
		ManufacturedAt: req.ManufacturedAt,
		Origin:         req.Origin,
		Category:       req.Category,
		Owner:          req.Owner,
	}, req.Description, clk.Now())
	require.NoError(t, err)

	app := NewAppender(store, clk)
	require.NoError(t, app.Insert(ctx, product, genesis))

	for _, to := range path {
		product, _, err = app.Append(ctx, product.ID(), func(p *domain.Product, head *domain.ActivityRecord, now time.Time) (*domain.ActivityRecord, error) {
			return p.ApplyTransition(to, domain.ActivityDetails{Location: "Warehouse 7", Handler: "Acme Logistics"}, head, now)
		})
		require.NoError(t, err)
	}

	stored, err := store.GetByID(ctx, product.ID())
	require.NoError(t, err)
	return stored
}

// AppendStrayRecord links a custom record onto the stored chain and commits
// it without touching the product row, the way a writer bypassing the
// ledger would.
func AppendStrayRecord(t *testing.T, store contracts.Store, productID string, at time.Time) *domain.ActivityRecord {
	t.Helper()
	ctx := context.Background()

	head, err := store.Head(ctx, productID)
	require.NoError(t, err)
	rec, err := domain.Link(head, productID, domain.ActivityEvent{
		Type:            domain.EventDelivered,
		ActivityDetails: domain.ActivityDetails{Location: "Back door", Handler: "mallory"},
	}, at)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, &contracts.CommitPlan{Records: []*domain.ActivityRecord{rec}}))
	return rec
}
