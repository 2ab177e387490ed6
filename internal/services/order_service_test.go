package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/store"
)

func TestNewOrderServiceRequiresDependencies(t *testing.T) {
	registry := newMemoryRegistry(t)
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error without repositories")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: registry.Orders}); err == nil {
		t.Fatalf("expected error without ledger")
	}
}

func TestOrderServiceReservationLifecycle(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)
	ctx := context.Background()

	first, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create first order: %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}

	if _, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	orders, err := h.orders.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("failed create must not persist an order, got %d orders", len(orders))
	}

	if _, err := h.orders.SetStatus(ctx, first.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 5 {
		t.Fatalf("expected stock 5 after cancel, got %d", got)
	}

	if _, err := h.orders.SetStatus(ctx, first.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel again: %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 5 {
		t.Fatalf("second cancel must not release again, got %d", got)
	}
}

func TestOrderServiceCreateOrder(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)

	order, err := h.orders.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: " c1 ", ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(order.ID, orderIDPrefix) {
		t.Fatalf("expected order id prefix, got %q", order.ID)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("expected Created, got %s", order.Status)
	}
	if order.CustomerID != "c1" {
		t.Fatalf("expected trimmed customer id, got %q", order.CustomerID)
	}
	if !order.CreatedOn.Equal(fixedNow) || !order.UpdatedOn.Equal(fixedNow) {
		t.Fatalf("expected timestamps %s, got %s/%s", fixedNow, order.CreatedOn, order.UpdatedOn)
	}

	stored, err := h.orders.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Quantity != 2 || stored.ProductID != "p1" {
		t.Fatalf("unexpected stored order %+v", stored)
	}

	kinds := h.events.kinds()
	if len(kinds) != 2 || kinds[0] != domain.EventEntityUpdated || kinds[1] != domain.EventEntityCreated {
		t.Fatalf("unexpected events %v", kinds)
	}
	if last := h.events.last(); last.EntityID != order.ID || !last.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected created event %+v", last)
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)

	cases := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{name: "blank customer", cmd: CreateOrderCommand{ProductID: "p1", Quantity: 1}, want: ErrOrderInvalidInput},
		{name: "blank product", cmd: CreateOrderCommand{CustomerID: "c1", Quantity: 1}, want: ErrOrderInvalidInput},
		{name: "zero quantity", cmd: CreateOrderCommand{CustomerID: "c1", ProductID: "p1"}, want: ErrOrderInvalidInput},
		{name: "missing product", cmd: CreateOrderCommand{CustomerID: "c1", ProductID: "ghost", Quantity: 1}, want: ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.orders.CreateOrder(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if kinds := h.events.kinds(); len(kinds) != 0 {
		t.Fatalf("rejected creates must not emit events, got %v", kinds)
	}
	if got := stockOf(t, h.registry, "p1"); got != 5 {
		t.Fatalf("rejected creates must not change stock, got %d", got)
	}
}

func TestOrderServiceCreateOrderReleasesWhenOrderWriteFails(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	orders := &stubRepo[domain.Order]{
		inner: registry.Orders,
		createFn: func(context.Context, domain.Order) (store.Versioned[domain.Order], error) {
			return store.Versioned[domain.Order]{}, store.NewError("Orders.create", store.ErrUnavailable, errBoom)
		},
	}
	h := newHarnessWith(t, registry, registry.Products, orders)

	_, err := h.orders.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 4})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("reservation must be released, got stock %d", got)
	}
	if kinds := h.events.kinds(); len(kinds) != 0 {
		t.Fatalf("failed create must not emit events, got %v", kinds)
	}
}

func TestOrderServiceConcurrentCreatesNeverOversell(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 3)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orders.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 2})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d (failures %v)", successes, failures)
	}
	if len(failures) != 1 || !errors.Is(failures[0], ErrInsufficientStock) {
		t.Fatalf("expected one insufficient stock failure, got %v", failures)
	}
	if got := stockOf(t, h.registry, "p1"); got != 1 {
		t.Fatalf("expected stock 1, got %d", got)
	}
}

func TestOrderServiceSetStatus(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)
	ctx := context.Background()
	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := h.orders.SetStatus(ctx, order.ID, "processing")
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected Processing, got %s", updated.Status)
	}
	if got := stockOf(t, h.registry, "p1"); got != 3 {
		t.Fatalf("non-cancel transition must not touch stock, got %d", got)
	}

	event := h.events.last()
	if event.Kind != domain.EventOrderStatusChanged {
		t.Fatalf("expected OrderStatusChanged, got %s", event.Kind)
	}
	if event.Message != "Order status changed from Created to Processing" {
		t.Fatalf("unexpected message %q", event.Message)
	}
	if event.RelatedID != "ORDER" || event.EntityID != order.ID {
		t.Fatalf("unexpected event identity %+v", event)
	}

	if _, err := h.orders.SetStatus(ctx, order.ID, "Shipped"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if _, err := h.orders.SetStatus(ctx, "ord_missing", domain.OrderStatusCompleted); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceCancelWithMissingProduct(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)
	ctx := context.Background()
	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.registry.Products.Delete(ctx, "p1"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	cancelled, err := h.orders.SetStatus(ctx, order.ID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected Cancelled, got %s", cancelled.Status)
	}
}

func TestOrderServiceConcurrentCancelReleasesOnce(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	orders := &stubRepo[domain.Order]{inner: registry.Orders}
	h := newHarnessWith(t, registry, registry.Products, orders)
	ctx := context.Background()

	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	raced := false
	orders.replaceFn = func(ctx context.Context, entity domain.Order, expected store.Version) (store.Versioned[domain.Order], error) {
		if !raced {
			raced = true
			// A competing cancel commits first, releasing the same units.
			current, err := registry.Orders.Get(ctx, entity.ID)
			if err != nil {
				t.Fatalf("read for competing cancel: %v", err)
			}
			if err := h.ledger.Release(ctx, "p1", 3); err != nil {
				t.Fatalf("competing release: %v", err)
			}
			competing := current.Entity
			competing.Status = domain.OrderStatusCancelled
			if _, err := registry.Orders.Replace(ctx, competing, current.Version); err != nil {
				t.Fatalf("competing write: %v", err)
			}
		}
		return registry.Orders.Replace(ctx, entity, expected)
	}

	if _, err := h.orders.SetStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("stock must be released exactly once, got %d", got)
	}
	event := h.events.last()
	if event.Message != "Order status changed from Cancelled to Cancelled" {
		t.Fatalf("expected transition from the fresh read, got %q", event.Message)
	}
}

// readBarrier holds the first n order reads until all of them have arrived, so every caller
// works from the same version.
func readBarrier(orders *stubRepo[domain.Order], n int) {
	var (
		mu      sync.Mutex
		arrived int
		release = make(chan struct{})
	)
	orders.getFn = func(ctx context.Context, id string) (store.Versioned[domain.Order], error) {
		mu.Lock()
		arrived++
		count := arrived
		if count == n {
			close(release)
		}
		mu.Unlock()
		if count <= n {
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
		}
		return orders.inner.Get(ctx, id)
	}
}

func TestOrderServiceConcurrentDeletesReleaseOnce(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	orders := &stubRepo[domain.Order]{inner: registry.Orders}
	h := newHarnessWith(t, registry, registry.Products, orders)
	ctx := context.Background()

	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	readBarrier(orders, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.orders.DeleteOrder(ctx, order.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("stock must be released exactly once, got %d", got)
	}
	if _, err := h.orders.GetOrder(ctx, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected order gone, got %v", err)
	}
}

func TestOrderServiceCancelRacingDeleteReleasesOnce(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	orders := &stubRepo[domain.Order]{inner: registry.Orders}
	h := newHarnessWith(t, registry, registry.Products, orders)
	ctx := context.Background()

	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	readBarrier(orders, 2)

	var (
		wg                   sync.WaitGroup
		statusErr, deleteErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, statusErr = h.orders.SetStatus(ctx, order.ID, domain.OrderStatusCancelled)
	}()
	go func() {
		defer wg.Done()
		deleteErr = h.orders.DeleteOrder(ctx, order.ID)
	}()
	wg.Wait()

	if deleteErr != nil {
		t.Fatalf("delete: %v", deleteErr)
	}
	if statusErr != nil && !errors.Is(statusErr, ErrOrderNotFound) {
		t.Fatalf("cancel: %v", statusErr)
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("stock must be released exactly once, got %d", got)
	}
}

func TestOrderServiceDeleteRestoresStatusWhenReleaseFails(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	products := &stubRepo[domain.Product]{inner: registry.Products}
	h := newHarnessWith(t, registry, products, registry.Orders)
	ctx := context.Background()

	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	products.replaceFn = func(context.Context, domain.Product, store.Version) (store.Versioned[domain.Product], error) {
		return store.Versioned[domain.Product]{}, store.NewError("Products.replace", store.ErrUnavailable, errBoom)
	}

	if err := h.orders.DeleteOrder(ctx, order.ID); err == nil {
		t.Fatal("expected delete to fail when stock cannot be released")
	}
	stored, err := h.orders.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("order must survive a failed delete: %v", err)
	}
	if stored.Status != domain.OrderStatusCreated {
		t.Fatalf("expected status restored to Created, got %s", stored.Status)
	}
	if got := stockOf(t, registry, "p1"); got != 2 {
		t.Fatalf("expected reservation kept, got %d", got)
	}
}

func TestOrderServiceCancelExhaustionRestoresStock(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	orders := &stubRepo[domain.Order]{inner: registry.Orders}
	h := newHarnessWith(t, registry, registry.Products, orders)
	ctx := context.Background()

	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	attempts := 0
	orders.replaceFn = func(context.Context, domain.Order, store.Version) (store.Versioned[domain.Order], error) {
		attempts++
		return store.Versioned[domain.Order]{}, store.NewError("Orders.replace", store.ErrVersionConflict, nil)
	}

	_, err = h.orders.SetStatus(ctx, order.ID, domain.OrderStatusCancelled)
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict after exhausting retries, got %v", err)
	}
	if attempts != 5 {
		t.Fatalf("expected 5 write attempts, got %d", attempts)
	}
	if got := stockOf(t, registry, "p1"); got != 2 {
		t.Fatalf("stock must not stay released without the status, got %d", got)
	}
	stored, err := registry.Orders.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Entity.Status != domain.OrderStatusCreated {
		t.Fatalf("status must be unchanged, got %s", stored.Entity.Status)
	}
}

type cancellingLedger struct {
	InventoryLedger
	cancel context.CancelFunc
}

func (c cancellingLedger) Release(ctx context.Context, productID string, qty int) error {
	err := c.InventoryLedger.Release(ctx, productID, qty)
	c.cancel()
	return err
}

func TestOrderServiceCancelledCallerStillPersistsStatus(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)
	order, err := h.orders.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: h.registry.Orders,
		Ledger: cancellingLedger{InventoryLedger: h.ledger, cancel: cancel},
		Clock:  fixedClock,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.SetStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, err := h.orders.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected Cancelled to persist, got %s", stored.Status)
	}
	if got := stockOf(t, h.registry, "p1"); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
}

func TestOrderServiceCancelledContextBeforeRelease(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 5)
	order, err := h.orders.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.orders.SetStatus(ctx, order.ID, domain.OrderStatusCancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancelled, got %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 2 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
}

func TestOrderServiceUpdateOrderLeavesStockAlone(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 10)
	ctx := context.Background()
	order, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	later := fixedNow.Add(time.Hour)
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: h.registry.Orders,
		Ledger: h.ledger,
		Events: h.events,
		Clock:  func() time.Time { return later },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	quantity := 7
	status := domain.OrderStatusCancelled
	updated, err := svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: order.ID, Quantity: &quantity, Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != order.ID || !updated.CreatedOn.Equal(order.CreatedOn) {
		t.Fatalf("identity and createdOn must be preserved: %+v", updated)
	}
	if !updated.UpdatedOn.Equal(later) {
		t.Fatalf("expected updatedOn %s, got %s", later, updated.UpdatedOn)
	}
	if updated.Quantity != 7 || updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("edit not applied: %+v", updated)
	}
	if got := stockOf(t, h.registry, "p1"); got != 8 {
		t.Fatalf("general edits never adjust stock, got %d", got)
	}
	if last := h.events.last(); last.Kind != domain.EventEntityUpdated || last.EntityID != order.ID {
		t.Fatalf("unexpected event %+v", last)
	}

	if _, err := svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: "ord_missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	zero := 0
	if _, err := svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: order.ID, Quantity: &zero}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceDeleteOrder(t *testing.T) {
	h := newHarness(t)
	seedProduct(t, h.registry, "p1", 10)
	ctx := context.Background()

	active, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 4})
	if err != nil {
		t.Fatalf("create active: %v", err)
	}
	cancelled, err := h.orders.CreateOrder(ctx, CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("create cancelled: %v", err)
	}
	if _, err := h.orders.SetStatus(ctx, cancelled.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}

	if err := h.orders.DeleteOrder(ctx, active.ID); err != nil {
		t.Fatalf("delete active: %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 10 {
		t.Fatalf("deleting an active order releases its units, got %d", got)
	}
	if last := h.events.last(); last.Kind != domain.EventEntityDeleted || last.EntityID != active.ID {
		t.Fatalf("unexpected event %+v", last)
	}

	if err := h.orders.DeleteOrder(ctx, cancelled.ID); err != nil {
		t.Fatalf("delete cancelled: %v", err)
	}
	if got := stockOf(t, h.registry, "p1"); got != 10 {
		t.Fatalf("deleting a cancelled order must not release again, got %d", got)
	}

	before := len(h.events.kinds())
	if err := h.orders.DeleteOrder(ctx, "ord_missing"); err != nil {
		t.Fatalf("deleting a missing order is a no-op, got %v", err)
	}
	if len(h.events.kinds()) != before {
		t.Fatalf("no-op delete must not emit events")
	}
	if _, err := h.orders.GetOrder(ctx, active.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected deleted order to be gone, got %v", err)
	}
}

func TestOrderServiceSwallowsNotifierFailures(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: registry.Products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: registry.Orders,
		Ledger: ledger,
		Events: &captureNotifier{err: errBoom},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "c1", ProductID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("notifier failures must not fail the operation: %v", err)
	}
	failures := 0
	for _, event := range logged {
		if event == "event.publish.failed" {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected two logged publish failures, got %v", logged)
	}
}
