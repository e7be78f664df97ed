package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/memory"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
	httphandler "github.com/light-bringer/supplytrace-ledger/internal/transport/http"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRouter(t *testing.T) (http.Handler, *memory.Store, *domain.Product) {
	t.Helper()

	store := memory.New()
	clk := testutil.NewSteppingClock()
	product := testutil.SeedProduct(t, store, clk, domain.StatusInTransit, domain.StatusStored)

	app := services.NewApplication(store, nil, clk)
	router := httphandler.NewRouter(
		httphandler.NewProductsHandler(app.GetProduct, app.ListProducts, app.GetHistory, app.VerifyProduct),
		httphandler.NewEventsHandler(app.ListEvents),
		store,
		time.Second,
	)
	return router, store, product
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestRouter_Product(t *testing.T) {
	router, _, product := newTestRouter(t)

	var dto struct {
		ProductID    string `json:"product_id"`
		Status       string `json:"status"`
		HeadSequence int64  `json:"head_sequence"`
	}
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/products/"+product.ID(), &dto))
	assert.Equal(t, product.ID(), dto.ProductID)
	assert.Equal(t, "stored", dto.Status)
	assert.Equal(t, int64(2), dto.HeadSequence)

	var errResp httphandler.ErrorResponse
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/products/missing", &errResp))
	assert.Contains(t, errResp.Error, "not found")
}

func TestRouter_History(t *testing.T) {
	router, _, product := newTestRouter(t)

	var history httphandler.HistoryResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/products/"+product.ID()+"/history", &history))

	require.Len(t, history.Records, 3)
	assert.Equal(t, domain.GenesisPreviousHash, history.Records[0].PreviousHash)
	for i, rec := range history.Records {
		assert.Equal(t, int64(i), rec.Sequence)
		assert.True(t, rec.HashValid(), "record %d survives the JSON round trip", i)
	}
}

func TestRouter_Verify(t *testing.T) {
	router, store, product := newTestRouter(t)

	var result domain.VerificationResult
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/products/"+product.ID()+"/verify", &result))
	assert.True(t, result.Valid)
	assert.Empty(t, result.Failures)

	require.NoError(t, store.RewriteRecord(product.ID(), 1, func(r *domain.ActivityRecord) { r.Handler = "mallory" }))

	result = domain.VerificationResult{}
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/products/"+product.ID()+"/verify", &result))
	assert.False(t, result.Valid)
	assert.Len(t, result.FailuresOf(domain.FailureRecordHashMismatch), 1)
	assert.Len(t, result.FailuresOf(domain.FailureChainLinkBroken), 1)
}

func TestRouter_ListProducts(t *testing.T) {
	router, store, _ := newTestRouter(t)
	testutil.SeedProduct(t, store, testutil.NewSteppingClock())

	var page httphandler.ListProductsResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/products?page_size=1", &page))
	assert.Len(t, page.Products, 1)
	assert.NotEmpty(t, page.NextPageToken)

	var filtered httphandler.ListProductsResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/products?status=manufactured", &filtered))
	require.Len(t, filtered.Products, 1)
	assert.Equal(t, "manufactured", filtered.Products[0].Status)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/products?status=lost", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/products?page_size=ten", nil))
}

func TestRouter_Events(t *testing.T) {
	router, _, product := newTestRouter(t)

	var resp httphandler.ListEventsResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/events?aggregate_id="+product.ID(), &resp))
	require.Equal(t, 3, resp.TotalCount)
	assert.Equal(t, "product.status_changed", resp.Events[0].EventType, "newest first")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(resp.Events[0].Payload, &payload))
	assert.Equal(t, "stored", payload["to_status"])

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, router, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])

	down := httphandler.NewRouter(httphandler.NewProductsHandler(nil, nil, nil, nil), httphandler.NewEventsHandler(nil), failingPinger{}, 0)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, down, "/healthz", &body))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "supplytrace_")
}
