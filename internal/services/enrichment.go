package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/store"
	"github.com/retailops/api/internal/repositories"
)

// ParseEnrichmentMode resolves a mode name; blank selects fallback.
func ParseEnrichmentMode(value string, fallback EnrichmentMode) (EnrichmentMode, bool) {
	switch EnrichmentMode(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return fallback, true
	case EnrichmentPerOrder:
		return EnrichmentPerOrder, true
	case EnrichmentBulk:
		return EnrichmentBulk, true
	default:
		return "", false
	}
}

// OrderEnrichmentDeps bundles the collaborators required to construct the enrichment service.
type OrderEnrichmentDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Products    repositories.ProductRepository
	DefaultMode EnrichmentMode
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Tracer      trace.Tracer
}

type orderEnrichment struct {
	orders      repositories.OrderRepository
	customers   repositories.CustomerRepository
	products    repositories.ProductRepository
	defaultMode EnrichmentMode
	logger      func(context.Context, string, map[string]any)
	tracer      trace.Tracer
}

// NewOrderEnrichment wires dependencies into a concrete OrderEnrichment implementation.
func NewOrderEnrichment(deps OrderEnrichmentDeps) (OrderEnrichment, error) {
	if deps.Orders == nil || deps.Customers == nil || deps.Products == nil {
		return nil, errors.New("order enrichment: order, customer and product repositories are required")
	}
	mode, ok := ParseEnrichmentMode(string(deps.DefaultMode), EnrichmentPerOrder)
	if !ok {
		return nil, fmt.Errorf("order enrichment: unknown mode %q", deps.DefaultMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return &orderEnrichment{
		orders:      deps.Orders,
		customers:   deps.Customers,
		products:    deps.Products,
		defaultMode: mode,
		logger:      logger,
		tracer:      tracer,
	}, nil
}

func (e *orderEnrichment) ListOrders(ctx context.Context, mode EnrichmentMode) ([]domain.Order, error) {
	resolved, ok := ParseEnrichmentMode(string(mode), e.defaultMode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown enrichment mode %q", ErrOrderInvalidInput, mode)
	}
	if resolved == EnrichmentBulk {
		return e.ListOrdersWithDetailsBulk(ctx)
	}
	return e.ListOrdersWithDetails(ctx)
}

// ListOrdersWithDetails looks up each order's customer and product individually. Any lookup
// failure yields the Unknown display name for that field only.
func (e *orderEnrichment) ListOrdersWithDetails(ctx context.Context) (orders []domain.Order, err error) {
	ctx, span := e.tracer.Start(ctx, "orders.listWithDetails")
	defer func() { endSpan(span, err) }()

	orders, err = store.Collect(e.orders.Scan(ctx))
	if err != nil {
		return nil, orderErrors.wrap(err)
	}
	for i := range orders {
		orders[i].CustomerName = e.customerName(ctx, orders[i].CustomerID)
		orders[i].ProductName = e.productName(ctx, orders[i].ProductID)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// ListOrdersWithDetailsBulk scans customers, products and orders once each and joins them in
// memory. Only an orders scan failure fails the listing.
func (e *orderEnrichment) ListOrdersWithDetailsBulk(ctx context.Context) (orders []domain.Order, err error) {
	ctx, span := e.tracer.Start(ctx, "orders.listWithDetailsBulk")
	defer func() { endSpan(span, err) }()

	customerNames := make(map[string]string)
	customers, scanErr := store.Collect(e.customers.Scan(ctx))
	if scanErr != nil {
		e.logger(ctx, "order.enrichment.customers.failed", map[string]any{"error": scanErr.Error()})
	}
	for _, customer := range customers {
		customerNames[customer.ID] = customer.Name
	}

	productNames := make(map[string]string)
	products, scanErr := store.Collect(e.products.Scan(ctx))
	if scanErr != nil {
		e.logger(ctx, "order.enrichment.products.failed", map[string]any{"error": scanErr.Error()})
	}
	for _, product := range products {
		productNames[product.ID] = product.Name
	}

	orders, err = store.Collect(e.orders.Scan(ctx))
	if err != nil {
		return nil, orderErrors.wrap(err)
	}
	for i := range orders {
		orders[i].CustomerName = displayName(customerNames, orders[i].CustomerID)
		orders[i].ProductName = displayName(productNames, orders[i].ProductID)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

func (e *orderEnrichment) customerName(ctx context.Context, id string) string {
	customer, err := e.customers.Get(ctx, id)
	if err != nil {
		e.logLookupFailure(ctx, "customer", id, err)
		return domain.UnknownDisplayName
	}
	return customer.Entity.Name
}

func (e *orderEnrichment) productName(ctx context.Context, id string) string {
	product, err := e.products.Get(ctx, id)
	if err != nil {
		e.logLookupFailure(ctx, "product", id, err)
		return domain.UnknownDisplayName
	}
	return product.Entity.Name
}

func (e *orderEnrichment) logLookupFailure(ctx context.Context, kind, id string, err error) {
	if store.IsNotFound(err) {
		return
	}
	e.logger(ctx, "order.enrichment.lookup.failed", map[string]any{
		"kind":  kind,
		"id":    id,
		"error": err.Error(),
	})
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return domain.UnknownDisplayName
}
