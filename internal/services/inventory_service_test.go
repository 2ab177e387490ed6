package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/store"
)

func TestNewInventoryLedgerRequiresProducts(t *testing.T) {
	if _, err := NewInventoryLedger(InventoryLedgerDeps{}); err == nil {
		t.Fatalf("expected error without product repository")
	}
}

func TestInventoryLedgerReserveAndRelease(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: registry.Products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()

	if err := ledger.Reserve(ctx, "p1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 2 {
		t.Fatalf("expected stock 2 after reserve, got %d", got)
	}

	err = ledger.Reserve(ctx, "p1", 3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 2 {
		t.Fatalf("failed reserve must not change stock, got %d", got)
	}

	if err := ledger.Reserve(ctx, "p1", 2); err != nil {
		t.Fatalf("reserve to zero: %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	if err := ledger.Release(ctx, "p1", 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("expected stock 5 after release, got %d", got)
	}

	if err := ledger.Restock(ctx, "p1", 10); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 15 {
		t.Fatalf("expected stock 15 after restock, got %d", got)
	}
}

func TestInventoryLedgerRejectsStockOverflow(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: registry.Products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()

	if err := ledger.Restock(ctx, "p1", math.MaxInt); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("restock: expected invalid input, got %v", err)
	}
	if err := ledger.Release(ctx, "p1", math.MaxInt-4); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("release: expected invalid input, got %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("rejected adjustments must not change stock, got %d", got)
	}
	if err := ledger.Release(ctx, "p1", math.MaxInt-5); err != nil {
		t.Fatalf("release up to the limit: %v", err)
	}
}

func TestInventoryLedgerMissingProduct(t *testing.T) {
	registry := newMemoryRegistry(t)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: registry.Products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	if err := ledger.Reserve(context.Background(), "ghost", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found on reserve, got %v", err)
	}
	if err := ledger.Release(context.Background(), "ghost", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found on release, got %v", err)
	}
}

func TestInventoryLedgerRejectsInvalidInput(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: registry.Products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	cases := []struct {
		name      string
		productID string
		qty       int
	}{
		{name: "blank product", productID: "  ", qty: 1},
		{name: "zero quantity", productID: "p1", qty: 0},
		{name: "negative quantity", productID: "p1", qty: -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ledger.Reserve(context.Background(), tc.productID, tc.qty); !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
	if got := stockOf(t, registry, "p1"); got != 5 {
		t.Fatalf("invalid input must not change stock, got %d", got)
	}
}

func TestInventoryLedgerReportsVersionConflict(t *testing.T) {
	registry := newMemoryRegistry(t)
	seedProduct(t, registry, "p1", 5)
	products := &stubRepo[domain.Product]{inner: registry.Products}
	products.getFn = func(ctx context.Context, id string) (store.Versioned[domain.Product], error) {
		current, err := registry.Products.Get(ctx, id)
		if err != nil {
			return current, err
		}
		// A competing writer lands between the read and the write.
		competing := current.Entity
		competing.Stock--
		if _, err := registry.Products.Replace(ctx, competing, current.Version); err != nil {
			t.Fatalf("competing write: %v", err)
		}
		return current, nil
	}

	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: products})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.Reserve(context.Background(), "p1", 1); !errors.Is(err, ErrStockConflict) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	if got := stockOf(t, registry, "p1"); got != 4 {
		t.Fatalf("only the competing write should land, got stock %d", got)
	}
}

func TestInventoryLedgerLogsFailures(t *testing.T) {
	registry := newMemoryRegistry(t)
	var events []string
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{
		Products: registry.Products,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	_ = ledger.Reserve(context.Background(), "ghost", 1)
	if len(events) != 1 || events[0] != "inventory.reserve.failed" {
		t.Fatalf("unexpected log events %v", events)
	}
}
