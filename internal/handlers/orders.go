package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/httpx"
	"github.com/retailops/api/internal/services"
)

const detailsNone = "none"

type createOrderRequest struct {
	CustomerID string `json:"customerId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
}

type updateOrderRequest struct {
	CustomerID *string `json:"customerId"`
	ProductID  *string `json:"productId"`
	Quantity   *int    `json:"quantity"`
	Status     *string `json:"status"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// OrderHandlers exposes the order lifecycle over HTTP.
type OrderHandlers struct {
	orders     services.OrderService
	enrichment services.OrderEnrichment
	catalog    services.CatalogService
}

// NewOrderHandlers constructs a new OrderHandlers instance. enrichment and catalog are optional.
func NewOrderHandlers(orders services.OrderService, enrichment services.OrderEnrichment, catalog services.CatalogService) *OrderHandlers {
	return &OrderHandlers{
		orders:     orders,
		enrichment: enrichment,
		catalog:    catalog,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/options", h.formOptions)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}", h.updateOrder)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Post("/{orderID}:status", h.setStatus)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	details := strings.TrimSpace(r.URL.Query().Get("details"))

	var (
		orders []domain.Order
		err    error
	)
	if h.enrichment == nil || strings.EqualFold(details, detailsNone) {
		orders, err = h.orders.ListOrders(ctx)
	} else {
		orders, err = h.enrichment.ListOrders(ctx, services.EnrichmentMode(details))
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeList(w, r, orders, func(o domain.Order) string { return o.ID })
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, order)
}

func (h *OrderHandlers) formOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	options, err := h.catalog.OrderFormOptions(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, options)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	cmd := services.UpdateOrderCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
	}
	if req.Status != nil {
		status := domain.OrderStatus(*req.Status)
		cmd.Status = &status
	}
	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.orders.DeleteOrder(ctx, chi.URLParam(r, "orderID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	order, err := h.orders.SetStatus(ctx, chi.URLParam(r, "orderID"), domain.OrderStatus(req.Status))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}
