package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/config"
	"github.com/retailops/api/internal/platform/store"
)

func newRegistry(t *testing.T) (*Registry, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	reg, err := NewRegistry(backend, config.StoreConfig{
		ProductsTable:  "Products",
		OrdersTable:    "Orders",
		CustomersTable: "Customers",
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, backend
}

func TestOrderSchemaDoesNotPersistDisplayNames(t *testing.T) {
	ctx := context.Background()
	reg, backend := newRegistry(t)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	order := domain.Order{
		ID:           "ord_1",
		CustomerID:   "c1",
		ProductID:    "p1",
		Quantity:     2,
		Status:       domain.OrderStatusCreated,
		CreatedOn:    created,
		UpdatedOn:    created,
		CustomerName: "Ada",
		ProductName:  "Widget",
	}
	if _, err := reg.Orders.Create(ctx, order); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, _, err := backend.Get(ctx, "Orders", domain.PartitionOrder, "ord_1")
	if err != nil {
		t.Fatalf("backend.Get: %v", err)
	}
	for key, value := range rec {
		if value == "Ada" || value == "Widget" {
			t.Fatalf("display name persisted under %s", key)
		}
	}

	got, err := reg.Orders.Get(ctx, "ord_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Entity.CustomerName != "" || got.Entity.ProductName != "" {
		t.Fatalf("expected empty display names, got %+v", got.Entity)
	}
	if !got.Entity.CreatedOn.Equal(created) || got.Entity.Quantity != 2 || got.Entity.Status != domain.OrderStatusCreated {
		t.Fatalf("unexpected decoded order %+v", got.Entity)
	}
}

func TestProductSchemaRoundTripsPriceAndStock(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	product := domain.Product{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("19.99"), Stock: 5}
	if _, err := reg.Products.Create(ctx, product); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := reg.Products.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Entity.Price.Equal(product.Price) || got.Entity.Stock != 5 || got.Entity.Name != "Widget" {
		t.Fatalf("unexpected product %+v", got.Entity)
	}
}

func TestOrderSchemaRejectsUnknownStatus(t *testing.T) {
	schema := OrderSchema("Orders")
	if _, err := schema.Decode("ord_1", store.Record{"Status": "Shipped"}); err == nil {
		t.Fatal("expected decode error for unknown status")
	}
	got, err := schema.Decode("ord_1", store.Record{"Status": "canceled", "Quantity": "3"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled || got.Quantity != 3 {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestRegistryKeepsKindsInSeparatePartitions(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	reg, err := NewRegistry(backend, config.StoreConfig{ProductsTable: "Shared", OrdersTable: "Shared", CustomersTable: "Shared"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.Products.Create(ctx, domain.Product{ID: "x", Name: "Widget"}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := reg.Customers.Create(ctx, domain.Customer{ID: "x", Name: "Ada"}); err != nil {
		t.Fatalf("create customer with same row key: %v", err)
	}
	customers, err := store.Collect(reg.Customers.Scan(ctx))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(customers) != 1 || customers[0].Name != "Ada" {
		t.Fatalf("unexpected customers %+v", customers)
	}
}

func TestNewRegistryRequiresTableNames(t *testing.T) {
	if _, err := NewRegistry(store.NewMemoryBackend(), config.StoreConfig{}); err == nil {
		t.Fatal("expected error for missing table names")
	}
}
