package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/config"
	"github.com/retailops/api/internal/platform/store"
	"github.com/retailops/api/internal/repositories"
	"github.com/retailops/api/internal/services"
)

type orderLifecycleContext struct {
	registry   *repositories.Registry
	orders     services.OrderService
	enrichment services.OrderEnrichment
	aliases    map[string]string
	lastErr    error
	concurrent []error
}

func (c *orderLifecycleContext) reset() error {
	registry, err := repositories.NewRegistry(store.NewMemoryBackend(), config.StoreConfig{
		ProductsTable:  "Products",
		OrdersTable:    "Orders",
		CustomersTable: "Customers",
	})
	if err != nil {
		return err
	}
	ledger, err := services.NewInventoryLedger(services.InventoryLedgerDeps{Products: registry.Products})
	if err != nil {
		return err
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        registry.Orders,
		Ledger:        ledger,
		StockAttempts: 5,
		StockBackoff:  time.Millisecond,
	})
	if err != nil {
		return err
	}
	enrichment, err := services.NewOrderEnrichment(services.OrderEnrichmentDeps{
		Orders:    registry.Orders,
		Customers: registry.Customers,
		Products:  registry.Products,
	})
	if err != nil {
		return err
	}
	c.registry = registry
	c.orders = orders
	c.enrichment = enrichment
	c.aliases = make(map[string]string)
	c.lastErr = nil
	c.concurrent = nil
	return nil
}

func (c *orderLifecycleContext) aProductWithStock(ctx context.Context, id string, stock int) error {
	_, err := c.registry.Products.Create(ctx, domain.Product{
		ID:    id,
		Name:  id,
		Price: decimal.NewFromInt(10),
		Stock: stock,
	})
	return err
}

func (c *orderLifecycleContext) aCustomerNamed(ctx context.Context, id, name string) error {
	_, err := c.registry.Customers.Create(ctx, domain.Customer{ID: id, Name: name})
	return err
}

func (c *orderLifecycleContext) iPlaceAnOrder(ctx context.Context, qty int, productID, alias string) error {
	return c.placeOrder(ctx, qty, productID, alias, "cust-default")
}

func (c *orderLifecycleContext) iPlaceAnOrderForCustomer(ctx context.Context, qty int, productID, alias, customerID string) error {
	return c.placeOrder(ctx, qty, productID, alias, customerID)
}

func (c *orderLifecycleContext) placeOrder(ctx context.Context, qty int, productID, alias, customerID string) error {
	order, err := c.orders.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   qty,
	})
	c.lastErr = err
	if err == nil {
		c.aliases[alias] = order.ID
	}
	return nil
}

func (c *orderLifecycleContext) theOrderSucceeds() error {
	if c.lastErr != nil {
		return fmt.Errorf("expected success, got %w", c.lastErr)
	}
	return nil
}

func (c *orderLifecycleContext) theOrderFailsWith(reason string) error {
	want := map[string]error{
		"insufficient stock": services.ErrInsufficientStock,
		"product not found":  services.ErrProductNotFound,
	}[reason]
	if want == nil {
		return fmt.Errorf("unknown failure %q", reason)
	}
	if !errors.Is(c.lastErr, want) {
		return fmt.Errorf("expected %v, got %v", want, c.lastErr)
	}
	return nil
}

func (c *orderLifecycleContext) theStockIs(ctx context.Context, productID string, want int) error {
	current, err := c.registry.Products.Get(ctx, productID)
	if err != nil {
		return err
	}
	if current.Entity.Stock != want {
		return fmt.Errorf("expected stock %d for %s, got %d", want, productID, current.Entity.Stock)
	}
	return nil
}

func (c *orderLifecycleContext) thereAreOrders(ctx context.Context, want int) error {
	orders, err := c.orders.ListOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) != want {
		return fmt.Errorf("expected %d orders, got %d", want, len(orders))
	}
	return nil
}

func (c *orderLifecycleContext) orderID(alias string) (string, error) {
	id, ok := c.aliases[alias]
	if !ok {
		return "", fmt.Errorf("no order placed as %q", alias)
	}
	return id, nil
}

func (c *orderLifecycleContext) iCancelOrder(ctx context.Context, alias string) error {
	return c.iSetOrderTo(ctx, alias, string(domain.OrderStatusCancelled))
}

func (c *orderLifecycleContext) iSetOrderTo(ctx context.Context, alias, status string) error {
	id, err := c.orderID(alias)
	if err != nil {
		return err
	}
	_, err = c.orders.SetStatus(ctx, id, domain.OrderStatus(status))
	return err
}

func (c *orderLifecycleContext) iDeleteOrder(ctx context.Context, alias string) error {
	id, err := c.orderID(alias)
	if err != nil {
		return err
	}
	return c.orders.DeleteOrder(ctx, id)
}

func (c *orderLifecycleContext) orderHasStatus(ctx context.Context, alias, status string) error {
	id, err := c.orderID(alias)
	if err != nil {
		return err
	}
	order, err := c.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if string(order.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, order.Status)
	}
	return nil
}

func (c *orderLifecycleContext) ordersArePlacedConcurrently(ctx context.Context, count, qty int, productID string) error {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	start := make(chan struct{})
	for range count {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.orders.CreateOrder(ctx, services.CreateOrderCommand{
				CustomerID: "cust-default",
				ProductID:  productID,
				Quantity:   qty,
			})
			mu.Lock()
			c.concurrent = append(c.concurrent, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	return nil
}

func (c *orderLifecycleContext) exactlyOfTheConcurrentOrdersSucceeds(want int) error {
	successes := 0
	for _, err := range c.concurrent {
		switch {
		case err == nil:
			successes++
		case !errors.Is(err, services.ErrInsufficientStock):
			return fmt.Errorf("unexpected failure: %w", err)
		}
	}
	if successes != want {
		return fmt.Errorf("expected %d successes, got %d", want, successes)
	}
	return nil
}

func (c *orderLifecycleContext) theListingShowsCustomer(ctx context.Context, mode, name, alias string) error {
	id, err := c.orderID(alias)
	if err != nil {
		return err
	}
	orders, err := c.enrichment.ListOrders(ctx, services.EnrichmentMode(mode))
	if err != nil {
		return err
	}
	for _, order := range orders {
		if order.ID != id {
			continue
		}
		if order.CustomerName != name {
			return fmt.Errorf("expected customer %q, got %q", name, order.CustomerName)
		}
		return nil
	}
	return fmt.Errorf("order %s missing from %s listing", id, mode)
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &orderLifecycleContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" with stock (\d+)$`, tc.aProductWithStock)
	ctx.Step(`^a customer "([^"]*)" named "([^"]*)"$`, tc.aCustomerNamed)

	// When steps
	ctx.Step(`^I place an order for (\d+) units of "([^"]*)" as "([^"]*)"$`, tc.iPlaceAnOrder)
	ctx.Step(`^I place an order for (\d+) units of "([^"]*)" as "([^"]*)" for customer "([^"]*)"$`, tc.iPlaceAnOrderForCustomer)
	ctx.Step(`^I cancel order "([^"]*)"$`, tc.iCancelOrder)
	ctx.Step(`^I set order "([^"]*)" to "([^"]*)"$`, tc.iSetOrderTo)
	ctx.Step(`^I delete order "([^"]*)"$`, tc.iDeleteOrder)
	ctx.Step(`^(\d+) orders for (\d+) units of "([^"]*)" are placed concurrently$`, tc.ordersArePlacedConcurrently)

	// Then steps
	ctx.Step(`^the order succeeds$`, tc.theOrderSucceeds)
	ctx.Step(`^the order fails with "([^"]*)"$`, tc.theOrderFailsWith)
	ctx.Step(`^the stock of "([^"]*)" is (\d+)$`, tc.theStockIs)
	ctx.Step(`^there are (\d+) orders$`, tc.thereAreOrders)
	ctx.Step(`^order "([^"]*)" has status "([^"]*)"$`, tc.orderHasStatus)
	ctx.Step(`^exactly (\d+) of the concurrent orders succeeds$`, tc.exactlyOfTheConcurrentOrdersSucceeds)
	ctx.Step(`^the "([^"]*)" listing shows customer "([^"]*)" for "([^"]*)"$`, tc.theListingShowsCustomer)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"order_lifecycle.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
