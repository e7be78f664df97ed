// Package services wires stores, use cases and transports together.
package services

import (
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/appender"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_history"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_events"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_products"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/verify_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/export_chain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/record_activity"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/transition_status"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/clock"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/keylock"
)

// Application bundles every command and query over one store.
type Application struct {
	// Commands
	RegisterProduct  *register_product.Interactor
	TransitionStatus *transition_status.Interactor
	RecordActivity   *record_activity.Interactor
	ExportChain      *export_chain.Interactor // nil without an archive

	// Queries
	GetProduct    *get_product.Query
	ListProducts  *list_products.Query
	GetHistory    *get_history.Query
	VerifyProduct *verify_product.Query
	ListEvents    *list_events.Query
}

// NewApplication builds the use cases. All writers share one appender, and so
// one lock table, so appends to a product are serialized process-wide.
func NewApplication(store contracts.Store, archive contracts.ArchiveStore, clk clock.Clock) *Application {
	app := appender.New(store, store, store, keylock.New(), clk, appender.DefaultRetryPolicy)

	a := &Application{
		RegisterProduct:  register_product.NewInteractor(store, app, clk),
		TransitionStatus: transition_status.NewInteractor(app),
		RecordActivity:   record_activity.NewInteractor(app),

		GetProduct:    get_product.NewQuery(store),
		ListProducts:  list_products.NewQuery(store),
		GetHistory:    get_history.NewQuery(store, store),
		VerifyProduct: verify_product.NewQuery(store, store, clk),
		ListEvents:    list_events.NewQuery(store),
	}
	if archive != nil {
		a.ExportChain = export_chain.NewInteractor(store, store, archive, clk)
	}
	return a
}
