package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/retailops/api/internal/platform/httpx"
	"github.com/retailops/api/internal/platform/pagination"
	"github.com/retailops/api/internal/services"
)

// writeServiceError maps service sentinels onto the error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("order_not_found", "order not found"))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("product_not_found", "product not found"))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("customer_not_found", "customer not found"))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.Conflict("insufficient_stock", "insufficient stock for the requested quantity"))
	case errors.Is(err, services.ErrStockConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("stock_conflict", "stock changed concurrently, retry the request"))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("order_conflict", "order changed concurrently, retry the request"))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("catalog_conflict", "record changed concurrently, retry the request"))
	case errors.Is(err, services.ErrOrderUnavailable),
		errors.Is(err, services.ErrInventoryUnavailable),
		errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.Internal())
	}
}

// writeDecodeError reports a malformed request body.
func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
	}
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

// writeList pages items by key when the request asks for a page and writes the list envelope.
func writeList[T any](w http.ResponseWriter, r *http.Request, items []T, key func(T) string) {
	ctx := r.Context()
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}
	page, next, err := pagination.Page(items, params, key)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.Internal())
		return
	}
	resp := newListResponse(page)
	resp.NextPageToken = next
	httpx.WriteJSON(w, http.StatusOK, resp)
}
