package ledger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_history"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_events"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_products"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/verify_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/export_chain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/record_activity"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/register_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/usecases/transition_status"
)

// Handler implements LedgerServiceServer.
// It's a thin coordinator that delegates to use cases and queries.
type Handler struct {
	// Commands
	registerProduct  *register_product.Interactor
	transitionStatus *transition_status.Interactor
	recordActivity   *record_activity.Interactor
	exportChain      *export_chain.Interactor // nil when no archive is configured

	// Queries
	getProduct    *get_product.Query
	listProducts  *list_products.Query
	getHistory    *get_history.Query
	verifyProduct *verify_product.Query
	listEvents    *list_events.Query
}

var _ LedgerServiceServer = (*Handler)(nil)

// NewHandler creates a new gRPC ledger handler.
func NewHandler(
	registerProduct *register_product.Interactor,
	transitionStatus *transition_status.Interactor,
	recordActivity *record_activity.Interactor,
	exportChain *export_chain.Interactor,
	getProduct *get_product.Query,
	listProducts *list_products.Query,
	getHistory *get_history.Query,
	verifyProduct *verify_product.Query,
	listEvents *list_events.Query,
) *Handler {
	return &Handler{
		registerProduct:  registerProduct,
		transitionStatus: transitionStatus,
		recordActivity:   recordActivity,
		exportChain:      exportChain,
		getProduct:       getProduct,
		listProducts:     listProducts,
		getHistory:       getHistory,
		verifyProduct:    verifyProduct,
		listEvents:       listEvents,
	}
}

// RegisterProduct registers a product and returns it with its genesis record.
func (h *Handler) RegisterProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// 1. Map request → application request
	manufacturedAt, err := timeField(req, "manufactured_at")
	if err != nil {
		return nil, err
	}
	appReq := &register_product.Request{
		ProductID:      stringField(req, "product_id"),
		Name:           stringField(req, "name"),
		BatchNumber:    stringField(req, "batch_number"),
		ManufacturedAt: manufacturedAt,
		Origin:         stringField(req, "origin"),
		Category:       stringField(req, "category"),
		Description:    stringField(req, "description"),
		Owner:          stringField(req, "owner"),
	}

	// 2. Call usecase (domain validates the registration)
	resp, err := h.registerProduct.Execute(ctx, appReq)
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	// 3. Return response
	return toStruct(map[string]any{
		"product": contracts.ProductDTOFromState(resp.Product.State()),
		"genesis": resp.Genesis,
	})
}

// TransitionStatus moves a product to a new status.
func (h *Handler) TransitionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := requireProductID(req)
	if err != nil {
		return nil, err
	}
	if err := validateTransitionRequest(req); err != nil {
		return nil, err
	}
	to, err := domain.ParseProductStatus(stringField(req, "new_status"))
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	resp, err := h.transitionStatus.Execute(ctx, &transition_status.Request{
		ProductID: productID,
		NewStatus: to,
		Location:  stringField(req, "location"),
		Handler:   stringField(req, "handler"),
		Details:   stringField(req, "details"),
	})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	return toStruct(map[string]any{
		"product": contracts.ProductDTOFromState(resp.Product.State()),
		"record":  resp.Record,
	})
}

// RecordActivity appends a custom activity.
func (h *Handler) RecordActivity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := requireProductID(req)
	if err != nil {
		return nil, err
	}
	if err := validateRecordActivityRequest(req); err != nil {
		return nil, err
	}

	rec, err := h.recordActivity.Execute(ctx, &record_activity.Request{
		ProductID: productID,
		EventType: stringField(req, "event_type"),
		Location:  stringField(req, "location"),
		Handler:   stringField(req, "handler"),
		Details:   stringField(req, "details"),
	})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	return toStruct(map[string]any{"record": rec})
}

// GetProduct retrieves a product by ID.
func (h *Handler) GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := requireProductID(req)
	if err != nil {
		return nil, err
	}

	dto, err := h.getProduct.Execute(ctx, &get_product.Request{ProductID: productID})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	return toStruct(map[string]any{"product": dto})
}

// ListProducts lists products with filtering and pagination.
func (h *Handler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	result, err := h.listProducts.Execute(ctx, &list_products.Request{
		Category:  stringField(req, "category"),
		Status:    stringField(req, "status"),
		Owner:     stringField(req, "owner"),
		PageSize:  intField(req, "page_size"),
		PageToken: stringField(req, "page_token"),
	})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	products := result.Products
	if products == nil {
		products = []*contracts.ProductDTO{}
	}
	return toStruct(map[string]any{
		"products":        products,
		"next_page_token": result.NextPageToken,
	})
}

// GetHistory returns a product's whole chain in one message.
func (h *Handler) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := requireProductID(req)
	if err != nil {
		return nil, err
	}

	records, err := h.getHistory.Execute(ctx, &get_history.Request{ProductID: productID})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	if records == nil {
		records = []*domain.ActivityRecord{}
	}

	return toStruct(map[string]any{
		"product_id": productID,
		"records":    records,
	})
}

// StreamHistory sends a product's chain one record per message, so long
// chains are never held in memory at once.
func (h *Handler) StreamHistory(req *structpb.Struct, stream grpc.ServerStream) error {
	productID, err := requireProductID(req)
	if err != nil {
		return err
	}

	records, err := h.getHistory.Stream(stream.Context(), &get_history.Request{ProductID: productID})
	if err != nil {
		return mapDomainErrorToGRPC(err)
	}
	for rec, err := range records {
		if err != nil {
			return mapDomainErrorToGRPC(err)
		}
		msg, err := toStruct(rec)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	return nil
}

// VerifyProduct recomputes the fingerprint and every record hash.
// Integrity failures are reported in the result, not as an error.
func (h *Handler) VerifyProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID, err := requireProductID(req)
	if err != nil {
		return nil, err
	}

	result, err := h.verifyProduct.Execute(ctx, &verify_product.Request{ProductID: productID})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	if result.Failures == nil {
		result.Failures = []domain.Failure{}
	}

	return toStruct(result)
}

// ExportChain writes a verified chain bundle to the archive.
func (h *Handler) ExportChain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if h.exportChain == nil {
		return nil, status.Error(codes.Unimplemented, "chain export requires an archive driver")
	}
	productID, err := requireProductID(req)
	if err != nil {
		return nil, err
	}

	resp, err := h.exportChain.Execute(ctx, &export_chain.Request{
		ProductID: productID,
		Force:     boolField(req, "force"),
	})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	return toStruct(map[string]any{
		"key":          resp.Key,
		"size":         resp.Size,
		"verification": resp.Verification,
	})
}

// ListEvents retrieves outbox events with filtering.
func (h *Handler) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	events, err := h.listEvents.Execute(ctx, &list_events.Request{
		EventType:   stringField(req, "event_type"),
		AggregateID: stringField(req, "aggregate_id"),
		Status:      stringField(req, "status"),
		Limit:       intField(req, "limit"),
	})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}

	views := make([]EventView, 0, len(events))
	for _, e := range events {
		views = append(views, NewEventView(e))
	}
	return toStruct(map[string]any{
		"events":      views,
		"total_count": len(views),
	})
}
