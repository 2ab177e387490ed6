package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/retailops/api/internal/repositories"
)

const (
	instrumentationName = "github.com/retailops/api/internal/services"

	ledgerOpReserve = "reserve"
	ledgerOpRelease = "release"
	ledgerOpRestock = "restock"
)

var inventoryErrors = repositoryErrorKinds{
	notFound:    ErrProductNotFound,
	conflict:    ErrStockConflict,
	unavailable: ErrInventoryUnavailable,
}

// InventoryLedgerDeps bundles the collaborators required to construct an inventory ledger.
type InventoryLedgerDeps struct {
	Products repositories.ProductRepository
	Meter    metric.Meter
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryLedger struct {
	products    repositories.ProductRepository
	adjustments metric.Int64Counter
	logger      func(context.Context, string, map[string]any)
}

// NewInventoryLedger wires dependencies into a concrete InventoryLedger implementation.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory ledger: product repository is required")
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	adjustments, err := meter.Int64Counter("inventory.adjustments",
		metric.WithDescription("Stock adjustments attempted by the inventory ledger"),
	)
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: create counter: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryLedger{
		products:    deps.Products,
		adjustments: adjustments,
		logger:      logger,
	}, nil
}

func (l *inventoryLedger) Reserve(ctx context.Context, productID string, qty int) error {
	return l.adjust(ctx, ledgerOpReserve, productID, qty, -qty)
}

func (l *inventoryLedger) Release(ctx context.Context, productID string, qty int) error {
	return l.adjust(ctx, ledgerOpRelease, productID, qty, qty)
}

func (l *inventoryLedger) Restock(ctx context.Context, productID string, qty int) error {
	return l.adjust(ctx, ledgerOpRestock, productID, qty, qty)
}

func (l *inventoryLedger) adjust(ctx context.Context, op string, productID string, qty int, delta int) error {
	err := l.apply(ctx, productID, qty, delta)
	l.adjustments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", adjustmentOutcome(err)),
	))
	if err != nil {
		l.logger(ctx, "inventory."+op+".failed", map[string]any{
			"productId": strings.TrimSpace(productID),
			"quantity":  qty,
			"error":     err.Error(),
		})
		return err
	}
	l.logger(ctx, "inventory."+op, map[string]any{
		"productId": strings.TrimSpace(productID),
		"quantity":  qty,
	})
	return nil
}

func (l *inventoryLedger) apply(ctx context.Context, productID string, qty int, delta int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInventoryInvalidInput)
	}

	current, err := l.products.Get(ctx, productID)
	if err != nil {
		return inventoryErrors.wrap(err)
	}

	product := current.Entity
	if delta > 0 && product.Stock > math.MaxInt-delta {
		return fmt.Errorf("%w: stock of product %s would overflow", ErrInventoryInvalidInput, productID)
	}
	next := product.Stock + delta
	if next < 0 {
		return fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, productID, product.Stock, qty)
	}
	product.Stock = next

	if _, err := l.products.Replace(ctx, product, current.Version); err != nil {
		return inventoryErrors.wrap(err)
	}
	return nil
}

func adjustmentOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, ErrProductNotFound):
		return "not_found"
	case errors.Is(err, ErrStockConflict):
		return "conflict"
	default:
		return "error"
	}
}
