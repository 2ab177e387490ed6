package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/config"
	"github.com/retailops/api/internal/platform/store"
	"github.com/retailops/api/internal/repositories"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newMemoryRegistry(t *testing.T) *repositories.Registry {
	t.Helper()
	registry, err := repositories.NewRegistry(store.NewMemoryBackend(), config.StoreConfig{
		ProductsTable:  "Products",
		OrdersTable:    "Orders",
		CustomersTable: "Customers",
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

func seedProduct(t *testing.T, registry *repositories.Registry, id string, stock int) {
	t.Helper()
	_, err := registry.Products.Create(context.Background(), domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString("19.99"),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func seedCustomer(t *testing.T, registry *repositories.Registry, id, name string) {
	t.Helper()
	if _, err := registry.Customers.Create(context.Background(), domain.Customer{ID: id, Name: name}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func stockOf(t *testing.T, registry *repositories.Registry, id string) int {
	t.Helper()
	current, err := registry.Products.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return current.Entity.Stock
}

type harness struct {
	registry *repositories.Registry
	ledger   InventoryLedger
	orders   OrderService
	events   *captureNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry := newMemoryRegistry(t)
	return newHarnessWith(t, registry, registry.Products, registry.Orders)
}

func newHarnessWith(t *testing.T, registry *repositories.Registry, products repositories.ProductRepository, orders repositories.OrderRepository) *harness {
	t.Helper()
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	events := &captureNotifier{}
	var seq atomic.Int64
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Ledger: ledger,
		Events: events,
		Clock:  fixedClock,
		IDGenerator: func() string {
			return fmt.Sprintf("TEST%02d", seq.Add(1))
		},
		StockAttempts: 5,
		StockBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return &harness{registry: registry, ledger: ledger, orders: svc, events: events}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event domain.LifecycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureNotifier) kinds() []domain.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventKind, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Kind)
	}
	return out
}

func (c *captureNotifier) last() domain.LifecycleEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return domain.LifecycleEvent{}
	}
	return c.events[len(c.events)-1]
}

// stubRepo delegates to an inner repository unless a hook is set.
type stubRepo[T any] struct {
	inner     repositories.EntityRepository[T]
	getFn     func(ctx context.Context, id string) (store.Versioned[T], error)
	createFn  func(ctx context.Context, entity T) (store.Versioned[T], error)
	replaceFn func(ctx context.Context, entity T, expected store.Version) (store.Versioned[T], error)
	deleteFn  func(ctx context.Context, id string) error
	scanFn    func(ctx context.Context) iter.Seq2[store.Versioned[T], error]
}

func (s *stubRepo[T]) Get(ctx context.Context, id string) (store.Versioned[T], error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return s.inner.Get(ctx, id)
}

func (s *stubRepo[T]) Create(ctx context.Context, entity T) (store.Versioned[T], error) {
	if s.createFn != nil {
		return s.createFn(ctx, entity)
	}
	return s.inner.Create(ctx, entity)
}

func (s *stubRepo[T]) Replace(ctx context.Context, entity T, expected store.Version) (store.Versioned[T], error) {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, entity, expected)
	}
	return s.inner.Replace(ctx, entity, expected)
}

func (s *stubRepo[T]) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return s.inner.Delete(ctx, id)
}

func (s *stubRepo[T]) Scan(ctx context.Context) iter.Seq2[store.Versioned[T], error] {
	if s.scanFn != nil {
		return s.scanFn(ctx)
	}
	return s.inner.Scan(ctx)
}

func failingScan[T any](err error) func(context.Context) iter.Seq2[store.Versioned[T], error] {
	return func(context.Context) iter.Seq2[store.Versioned[T], error] {
		return func(yield func(store.Versioned[T], error) bool) {
			yield(store.Versioned[T]{}, err)
		}
	}
}

var errBoom = errors.New("boom")
