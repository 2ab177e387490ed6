package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/domain"
)

// EventNotifier delivers lifecycle notifications to downstream consumers. Failures are
// logged by the calling service and never fail the business operation.
type EventNotifier interface {
	Notify(ctx context.Context, event domain.LifecycleEvent) error
}

// InventoryLedger is the single writer of product stock. Each call mutates exactly one
// product with a version-checked replace and never retries on its own.
type InventoryLedger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
	Restock(ctx context.Context, productID string, qty int) error
}

// OrderService manages the order lifecycle and keeps stock reservations consistent with it.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// OrderEnrichment lists orders with customer and product display names attached.
type OrderEnrichment interface {
	ListOrdersWithDetails(ctx context.Context) ([]domain.Order, error)
	ListOrdersWithDetailsBulk(ctx context.Context) ([]domain.Order, error)
	ListOrders(ctx context.Context, mode EnrichmentMode) ([]domain.Order, error)
}

// CatalogService maintains the products and customers that orders reference.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	AttachProductImage(ctx context.Context, productID string, imageRef string) (domain.Product, error)

	CreateCustomer(ctx context.Context, cmd UpsertCustomerCommand) (domain.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, cmd UpsertCustomerCommand) (domain.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error

	OrderFormOptions(ctx context.Context) (OrderFormOptions, error)
}

// CreateOrderCommand places a new order for quantity units of one product.
type CreateOrderCommand struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

// UpdateOrderCommand edits an order's fields without touching stock. A nil field keeps the
// stored value.
type UpdateOrderCommand struct {
	OrderID    string
	CustomerID *string
	ProductID  *string
	Quantity   *int
	Status     *domain.OrderStatus
}

// EnrichmentMode selects how order listings resolve display names.
type EnrichmentMode string

const (
	EnrichmentPerOrder EnrichmentMode = "per-order"
	EnrichmentBulk     EnrichmentMode = "bulk"
)

// UpsertProductCommand carries the editable product fields. Stock only applies on create.
type UpsertProductCommand struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// UpsertCustomerCommand carries the editable customer fields.
type UpsertCustomerCommand struct {
	Name  string
	Email string
	Phone string
}

// OrderFormOptions lists the customers and products an order can be placed against.
type OrderFormOptions struct {
	Customers []domain.Customer `json:"customers"`
	Products  []domain.Product  `json:"products"`
}
