package http

import (
	"net/http"
	"strconv"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_history"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/get_product"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/list_products"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/queries/verify_product"
)

// ProductsHandler serves the read-only product endpoints.
type ProductsHandler struct {
	getProduct    *get_product.Query
	listProducts  *list_products.Query
	getHistory    *get_history.Query
	verifyProduct *verify_product.Query
}

// NewProductsHandler creates a new HTTP products handler.
func NewProductsHandler(
	getProduct *get_product.Query,
	listProducts *list_products.Query,
	getHistory *get_history.Query,
	verifyProduct *verify_product.Query,
) *ProductsHandler {
	return &ProductsHandler{
		getProduct:    getProduct,
		listProducts:  listProducts,
		getHistory:    getHistory,
		verifyProduct: verifyProduct,
	}
}

// ListProductsResponse is the body of GET /api/v1/products.
type ListProductsResponse struct {
	Products      []*contracts.ProductDTO `json:"products"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
}

// HistoryResponse is the body of GET /api/v1/products/{id}/history.
type HistoryResponse struct {
	ProductID string                   `json:"product_id"`
	Records   []*domain.ActivityRecord `json:"records"`
}

// List handles GET /api/v1/products.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := &list_products.Request{
		Category:  query.Get("category"),
		Status:    query.Get("status"),
		Owner:     query.Get("owner"),
		PageToken: query.Get("page_token"),
	}
	if sizeStr := query.Get("page_size"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "page_size must be an integer"})
			return
		}
		req.PageSize = size
	}

	result, err := h.listProducts.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	products := result.Products
	if products == nil {
		products = []*contracts.ProductDTO{}
	}
	writeJSON(w, http.StatusOK, ListProductsResponse{Products: products, NextPageToken: result.NextPageToken})
}

// Get handles GET /api/v1/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	dto, err := h.getProduct.Execute(r.Context(), &get_product.Request{ProductID: r.PathValue("id")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// History handles GET /api/v1/products/{id}/history.
func (h *ProductsHandler) History(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := h.getHistory.Execute(r.Context(), &get_history.Request{ProductID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*domain.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ProductID: id, Records: records})
}

// Verify handles GET /api/v1/products/{id}/verify. A tampered chain is still
// a 200: the findings are the answer.
func (h *ProductsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.verifyProduct.Execute(r.Context(), &verify_product.Request{ProductID: r.PathValue("id")})
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Failures == nil {
		result.Failures = []domain.Failure{}
	}
	writeJSON(w, http.StatusOK, result)
}
