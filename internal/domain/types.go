package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Partition keys used by the entity store for each record kind.
const (
	PartitionProduct  = "PRODUCT"
	PartitionOrder    = "ORDER"
	PartitionCustomer = "CUSTOMER"
)

// UnknownDisplayName is substituted for customer/product names that cannot be resolved.
const UnknownDisplayName = "Unknown"

// Product is a sellable item with a stock counter owned by the inventory ledger.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageRef    string          `json:"imageRef,omitempty"`
}

// Customer places orders. Orders reference customers by ID without validating existence.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "Created"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ParseOrderStatus resolves a status name case-insensitively. "Canceled" is accepted as an alias.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, "canceled") {
		return OrderStatusCancelled, true
	}
	for _, status := range OrderStatuses {
		if strings.EqualFold(trimmed, string(status)) {
			return status, true
		}
	}
	return "", false
}

// IsCancelled reports whether the status has already returned its reserved stock.
func (s OrderStatus) IsCancelled() bool {
	return s == OrderStatusCancelled
}

// Order records a customer's purchase of a quantity of one product.
// CustomerName and ProductName are display-only and never persisted.
type Order struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customerId"`
	ProductID    string      `json:"productId"`
	Quantity     int         `json:"quantity"`
	Status       OrderStatus `json:"status"`
	CreatedOn    time.Time   `json:"createdOn"`
	UpdatedOn    time.Time   `json:"updatedOn"`
	CustomerName string      `json:"customerName,omitempty"`
	ProductName  string      `json:"productName,omitempty"`
}

// HoldsReservation reports whether the order currently has stock deducted on its behalf.
func (o Order) HoldsReservation() bool {
	return !o.Status.IsCancelled()
}

// EventKind is the closed set of lifecycle notifications emitted by the services.
type EventKind string

const (
	EventEntityCreated        EventKind = "EntityCreated"
	EventEntityUpdated        EventKind = "EntityUpdated"
	EventEntityDeleted        EventKind = "EntityDeleted"
	EventOrderStatusChanged   EventKind = "OrderStatusChanged"
	EventProductImageUploaded EventKind = "ProductImageUploaded"
)

// LifecycleEvent is a fire-and-forget notification describing a completed state change.
type LifecycleEvent struct {
	Kind      EventKind `json:"EventType"`
	EntityID  string    `json:"EntityId"`
	RelatedID string    `json:"RelatedId,omitempty"`
	Message   string    `json:"Message"`
	Timestamp time.Time `json:"Timestamp"`
}
