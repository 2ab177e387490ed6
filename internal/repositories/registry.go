package repositories

import (
	"fmt"

	"github.com/retailops/api/internal/platform/config"
	"github.com/retailops/api/internal/platform/store"
)

// Registry holds the typed repositories that share one backend.
type Registry struct {
	Products  ProductRepository
	Orders    OrderRepository
	Customers CustomerRepository
}

// NewRegistry binds the product, order and customer schemas to backend using
// the configured table names.
func NewRegistry(backend store.Backend, cfg config.StoreConfig) (*Registry, error) {
	products, err := store.NewTable(backend, ProductSchema(cfg.ProductsTable))
	if err != nil {
		return nil, fmt.Errorf("products repository: %w", err)
	}
	orders, err := store.NewTable(backend, OrderSchema(cfg.OrdersTable))
	if err != nil {
		return nil, fmt.Errorf("orders repository: %w", err)
	}
	customers, err := store.NewTable(backend, CustomerSchema(cfg.CustomersTable))
	if err != nil {
		return nil, fmt.Errorf("customers repository: %w", err)
	}
	return &Registry{Products: products, Orders: orders, Customers: customers}, nil
}
