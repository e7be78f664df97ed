package ledger_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/archive/fs"
	"github.com/light-bringer/supplytrace-ledger/internal/infra/persistence/memory"
	"github.com/light-bringer/supplytrace-ledger/internal/pkg/logging"
	"github.com/light-bringer/supplytrace-ledger/internal/services"
	"github.com/light-bringer/supplytrace-ledger/internal/testutil"
	"github.com/light-bringer/supplytrace-ledger/internal/transport/grpc/ledger"
)

func newTestClient(t *testing.T, withArchive bool) (*ledger.Client, *memory.Store) {
	t.Helper()

	store := memory.New()
	var app *services.Application
	if withArchive {
		archive, err := fs.New(t.TempDir())
		require.NoError(t, err)
		app = services.NewApplication(store, archive, testutil.NewSteppingClock())
	} else {
		app = services.NewApplication(store, nil, testutil.NewSteppingClock())
	}

	handler := ledger.NewHandler(
		app.RegisterProduct, app.TransitionStatus, app.RecordActivity, app.ExportChain,
		app.GetProduct, app.ListProducts, app.GetHistory, app.VerifyProduct, app.ListEvents,
	)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(ledger.UnaryLoggingInterceptor(logging.Discard())),
		grpc.ChainStreamInterceptor(ledger.StreamLoggingInterceptor(logging.Discard())),
	)
	ledger.RegisterLedgerServiceServer(server, handler)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return ledger.NewClient(conn), store
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, s *structpb.Struct, v any) {
	t.Helper()
	raw, err := s.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func registration(id string) map[string]any {
	return map[string]any{
		"product_id":      id,
		"name":            "Organic Coffee Beans",
		"batch_number":    "BCH-2024-001",
		"manufactured_at": "2024-03-01T08:30:00Z",
		"origin":          "Colombia",
		"category":        "food",
		"description":     "Single-origin arabica",
		"owner":           "Andes Growers Co-op",
	}
}

func TestLedgerService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, true)

	reg, err := client.Call(ctx, ledger.MethodRegisterProduct, mustStruct(t, registration("coffee-001")))
	require.NoError(t, err)

	var registered struct {
		Product struct {
			Status      string `json:"status"`
			Fingerprint string `json:"fingerprint"`
		} `json:"product"`
		Genesis struct {
			Sequence     int64  `json:"sequence"`
			PreviousHash string `json:"previous_hash"`
		} `json:"genesis"`
	}
	decode(t, reg, &registered)
	assert.Equal(t, "manufactured", registered.Product.Status)
	assert.Len(t, registered.Product.Fingerprint, 64)
	assert.Equal(t, int64(0), registered.Genesis.Sequence)

	for _, to := range []string{"in_transit", "stored", "delivered"} {
		_, err := client.Call(ctx, ledger.MethodTransitionStatus, mustStruct(t, map[string]any{
			"product_id": "coffee-001",
			"new_status": to,
			"location":   to + " site",
			"handler":    "Acme Logistics",
		}))
		require.NoError(t, err, to)
	}

	history, err := client.Call(ctx, ledger.MethodGetHistory, mustStruct(t, map[string]any{"product_id": "coffee-001"}))
	require.NoError(t, err)
	var chain struct {
		Records []struct {
			Sequence     int64  `json:"sequence"`
			EventType    string `json:"event_type"`
			Hash         string `json:"hash"`
			PreviousHash string `json:"previous_hash"`
		} `json:"records"`
	}
	decode(t, history, &chain)
	require.Len(t, chain.Records, 4)
	assert.Equal(t, []string{"manufactured", "shipped", "stored", "delivered"},
		[]string{chain.Records[0].EventType, chain.Records[1].EventType, chain.Records[2].EventType, chain.Records[3].EventType})
	for i := 1; i < len(chain.Records); i++ {
		assert.Equal(t, chain.Records[i-1].Hash, chain.Records[i].PreviousHash)
	}

	streamed, err := client.StreamHistory(ctx, "coffee-001")
	require.NoError(t, err)
	assert.Len(t, streamed, 4)

	verified, err := client.Call(ctx, ledger.MethodVerifyProduct, mustStruct(t, map[string]any{"product_id": "coffee-001"}))
	require.NoError(t, err)
	assert.True(t, verified.GetFields()["valid"].GetBoolValue())
	assert.Equal(t, float64(4), verified.GetFields()["record_count"].GetNumberValue())

	exported, err := client.Call(ctx, ledger.MethodExportChain, mustStruct(t, map[string]any{"product_id": "coffee-001"}))
	require.NoError(t, err)
	assert.Contains(t, exported.GetFields()["key"].GetStringValue(), "chains/coffee-001/00000003-")

	events, err := client.Call(ctx, ledger.MethodListEvents, mustStruct(t, map[string]any{"aggregate_id": "coffee-001"}))
	require.NoError(t, err)
	assert.Equal(t, float64(4), events.GetFields()["total_count"].GetNumberValue())
}

func TestLedgerService_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, false)

	_, err := client.Call(ctx, ledger.MethodRegisterProduct, mustStruct(t, registration("coffee-001")))
	require.NoError(t, err)

	missingOrigin := registration("coffee-002")
	delete(missingOrigin, "origin")

	badTime := registration("coffee-003")
	badTime["manufactured_at"] = "yesterday"

	reusedID := registration("coffee-001")
	reusedID["batch_number"] = "BCH-2024-002"

	tests := []struct {
		name   string
		method string
		req    map[string]any
		code   codes.Code
	}{
		{"missing registration field", ledger.MethodRegisterProduct, missingOrigin, codes.InvalidArgument},
		{"malformed timestamp", ledger.MethodRegisterProduct, badTime, codes.InvalidArgument},
		{"identical registration", ledger.MethodRegisterProduct, registration("coffee-001"), codes.AlreadyExists},
		{"reused identifier", ledger.MethodRegisterProduct, reusedID, codes.AlreadyExists},
		{"missing product id", ledger.MethodGetProduct, map[string]any{}, codes.InvalidArgument},
		{"unknown product", ledger.MethodVerifyProduct, map[string]any{"product_id": "nope"}, codes.NotFound},
		{"unknown status", ledger.MethodTransitionStatus, map[string]any{"product_id": "coffee-001", "new_status": "lost"}, codes.InvalidArgument},
		{"illegal transition", ledger.MethodTransitionStatus, map[string]any{"product_id": "coffee-001", "new_status": "delivered"}, codes.FailedPrecondition},
		{"reserved event type", ledger.MethodRecordActivity, map[string]any{"product_id": "coffee-001", "event_type": "shipped"}, codes.InvalidArgument},
		{"export without archive", ledger.MethodExportChain, map[string]any{"product_id": "coffee-001"}, codes.Unimplemented},
		{"bad page token", ledger.MethodListProducts, map[string]any{"page_token": "!!"}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Call(ctx, tt.method, mustStruct(t, tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err), err.Error())
		})
	}
}

func TestLedgerService_TamperingIsReportedNotRaised(t *testing.T) {
	ctx := context.Background()
	client, store := newTestClient(t, true)

	_, err := client.Call(ctx, ledger.MethodRegisterProduct, mustStruct(t, registration("coffee-001")))
	require.NoError(t, err)
	_, err = client.Call(ctx, ledger.MethodTransitionStatus, mustStruct(t, map[string]any{"product_id": "coffee-001", "new_status": "in_transit"}))
	require.NoError(t, err)

	require.NoError(t, store.RewriteRecord("coffee-001", 0, func(r *domain.ActivityRecord) { r.Location = "Brazil" }))

	verified, err := client.Call(ctx, ledger.MethodVerifyProduct, mustStruct(t, map[string]any{"product_id": "coffee-001"}))
	require.NoError(t, err)
	assert.False(t, verified.GetFields()["valid"].GetBoolValue())
	assert.NotEmpty(t, verified.GetFields()["failures"].GetListValue().GetValues())

	_, err = client.Call(ctx, ledger.MethodExportChain, mustStruct(t, map[string]any{"product_id": "coffee-001"}))
	assert.Equal(t, codes.DataLoss, status.Code(err))

	_, err = client.Call(ctx, ledger.MethodExportChain, mustStruct(t, map[string]any{"product_id": "coffee-001", "force": true}))
	assert.NoError(t, err)
}

func TestLedgerService_RecordsPastHead(t *testing.T) {
	ctx := context.Background()
	client, store := newTestClient(t, false)

	_, err := client.Call(ctx, ledger.MethodRegisterProduct, mustStruct(t, registration("coffee-001")))
	require.NoError(t, err)
	testutil.AppendStrayRecord(t, store, "coffee-001", testutil.Epoch.Add(time.Hour))

	verified, err := client.Call(ctx, ledger.MethodVerifyProduct, mustStruct(t, map[string]any{"product_id": "coffee-001"}))
	require.NoError(t, err)
	assert.False(t, verified.GetFields()["valid"].GetBoolValue())

	_, err = client.Call(ctx, ledger.MethodTransitionStatus, mustStruct(t, map[string]any{"product_id": "coffee-001", "new_status": "in_transit"}))
	assert.Equal(t, codes.DataLoss, status.Code(err), "a jammed chain must not look retryable")
}
