package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/httpx"
	"github.com/retailops/api/internal/services"
)

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

func (p productRequest) command() services.UpsertProductCommand {
	return services.UpsertProductCommand{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
	}
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type imageRequest struct {
	ImageRef string `json:"imageRef"`
}

type customerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (c customerRequest) command() services.UpsertCustomerCommand {
	return services.UpsertCustomerCommand{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

// CatalogHandlers exposes product and customer management.
type CatalogHandlers struct {
	catalog services.CatalogService
	ledger  services.InventoryLedger
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService, ledger services.InventoryLedger) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, ledger: ledger}
}

// ProductRoutes registers the /products endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	r.Get("/{productID}", h.getProduct)
	r.Put("/{productID}", h.updateProduct)
	r.Delete("/{productID}", h.deleteProduct)
	r.Post("/{productID}:restock", h.restockProduct)
	r.Post("/{productID}/image", h.attachImage)
}

// CustomerRoutes registers the /customers endpoints.
func (h *CatalogHandlers) CustomerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCustomers)
	r.Post("/", h.createCustomer)
	r.Get("/{customerID}", h.getCustomer)
	r.Put("/{customerID}", h.updateCustomer)
	r.Delete("/{customerID}", h.deleteCustomer)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeList(w, r, products, func(p domain.Product) string { return p.ID })
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req productRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	product, err := h.catalog.CreateProduct(ctx, req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+product.ID)
	httpx.WriteJSON(w, http.StatusCreated, product)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req productRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, chi.URLParam(r, "productID"), req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) restockProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory ledger unavailable", http.StatusServiceUnavailable))
		return
	}
	var req restockRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	productID := chi.URLParam(r, "productID")
	if err := h.ledger.Restock(ctx, productID, req.Quantity); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) attachImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req imageRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	product, err := h.catalog.AttachProductImage(ctx, chi.URLParam(r, "productID"), req.ImageRef)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.catalog.ListCustomers(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeList(w, r, customers, func(c domain.Customer) string { return c.ID })
}

func (h *CatalogHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req customerRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	customer, err := h.catalog.CreateCustomer(ctx, req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+customer.ID)
	httpx.WriteJSON(w, http.StatusCreated, customer)
}

func (h *CatalogHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.catalog.GetCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, customer)
}

func (h *CatalogHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req customerRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	customer, err := h.catalog.UpdateCustomer(ctx, chi.URLParam(r, "customerID"), req.command())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, customer)
}

func (h *CatalogHandlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCustomer(r.Context(), chi.URLParam(r, "customerID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
