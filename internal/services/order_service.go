package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/repositories"
	"github.com/retailops/api/internal/platform/store"
)

const (
	orderIDPrefix = "ord_"

	// statusRelatedID tags OrderStatusChanged events with the order partition.
	statusRelatedID = domain.PartitionOrder
)

var orderErrors = repositoryErrorKinds{
	notFound:    ErrOrderNotFound,
	conflict:    ErrOrderConflict,
	unavailable: ErrOrderUnavailable,
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Ledger        InventoryLedger
	Events        EventNotifier
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
	Tracer        trace.Tracer
	StockAttempts int
	StockBackoff  time.Duration
}

type orderService struct {
	orders repositories.OrderRepository
	ledger InventoryLedger
	events EventNotifier
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
	tracer trace.Tracer
	retry  conflictRetry
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: inventory ledger is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	return &orderService{
		orders: deps.Orders,
		ledger: deps.Ledger,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
		tracer: tracer,
		retry:  newConflictRetry(deps.StockAttempts, deps.StockBackoff),
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.create")
	defer func() { endSpan(span, err) }()

	customerID := strings.TrimSpace(cmd.CustomerID)
	productID := strings.TrimSpace(cmd.ProductID)
	switch {
	case customerID == "":
		return domain.Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	case productID == "":
		return domain.Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	case cmd.Quantity <= 0:
		return domain.Order{}, fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
	}
	span.SetAttributes(
		attribute.String("order.product_id", productID),
		attribute.Int("order.quantity", cmd.Quantity),
	)

	err = s.retry.do(ctx, isStockConflict, func(ctx context.Context) error {
		return s.ledger.Reserve(ctx, productID, cmd.Quantity)
	})
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	order = domain.Order{
		ID:         ensureOrderID(s.newID()),
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   cmd.Quantity,
		Status:     domain.OrderStatusCreated,
		CreatedOn:  now,
		UpdatedOn:  now,
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		s.compensateReserve(ctx, order, err)
		return domain.Order{}, orderErrors.wrap(err)
	}

	s.publishEvent(ctx, domain.EventEntityUpdated, productID, "", "Product updated")
	s.publishEvent(ctx, domain.EventEntityCreated, order.ID, "", "Order created")
	s.logger(ctx, "order.created", map[string]any{
		"orderId":   order.ID,
		"productId": productID,
		"quantity":  order.Quantity,
	})
	return created.Entity, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	current, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, orderErrors.wrap(err)
	}
	return current.Entity, nil
}

func (s *orderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := store.Collect(s.orders.Scan(ctx))
	if err != nil {
		return nil, orderErrors.wrap(err)
	}
	return orders, nil
}

// SetStatus moves an order to status. Cancelling returns the reservation to stock before the
// order write. The write is version-checked; on a conflict the transition is re-evaluated from
// a fresh read, and a release already made is kept or undone depending on what that read shows.
func (s *orderService) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus) (result domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.setStatus")
	defer func() { endSpan(span, err) }()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(string(status))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(target)),
	)

	var (
		held    *domain.Order
		workCtx = ctx
	)
	for attempt := 1; ; attempt++ {
		current, err := s.orders.Get(workCtx, orderID)
		if err != nil {
			s.undoRelease(workCtx, held)
			return domain.Order{}, orderErrors.wrap(err)
		}

		order := current.Entity
		previous := order.Status
		needsRelease := target.IsCancelled() && !previous.IsCancelled()

		switch {
		case needsRelease && held == nil:
			if err := ctx.Err(); err != nil {
				return domain.Order{}, err
			}
			released, err := s.releaseReservation(ctx, order)
			if err != nil {
				return domain.Order{}, err
			}
			if released {
				snapshot := order
				held = &snapshot
			}
			workCtx = context.WithoutCancel(ctx)
		case !needsRelease && held != nil:
			// Another writer cancelled first and released the same units.
			s.undoRelease(workCtx, held)
			held = nil
		}

		order.Status = target
		order.UpdatedOn = s.clock()
		saved, err := s.orders.Replace(workCtx, order, current.Version)
		if err == nil {
			if held != nil {
				s.publishEvent(workCtx, domain.EventEntityUpdated, held.ProductID, "", "Product updated")
			}
			s.publishEvent(workCtx, domain.EventOrderStatusChanged, orderID, statusRelatedID,
				fmt.Sprintf("Order status changed from %s to %s", previous, target))
			s.logger(workCtx, "order.status.changed", map[string]any{
				"orderId": orderID,
				"from":    string(previous),
				"to":      string(target),
			})
			return saved.Entity, nil
		}

		err = orderErrors.wrap(err)
		if !isOrderConflict(err) || attempt >= s.retry.attempts {
			s.undoRelease(workCtx, held)
			if isOrderConflict(err) {
				return domain.Order{}, fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			return domain.Order{}, err
		}
		if err := s.retry.sleep(workCtx, time.Duration(attempt)*s.retry.backoff); err != nil {
			return domain.Order{}, err
		}
	}
}

// UpdateOrder edits order fields. Stock is never adjusted here, even when quantity, product or
// status change; use SetStatus for transitions that must move stock.
func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (order domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.update")
	defer func() { endSpan(span, err) }()

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	current, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, orderErrors.wrap(err)
	}

	order = current.Entity
	if cmd.CustomerID != nil {
		value := strings.TrimSpace(*cmd.CustomerID)
		if value == "" {
			return domain.Order{}, fmt.Errorf("%w: customer id cannot be blank", ErrOrderInvalidInput)
		}
		order.CustomerID = value
	}
	if cmd.ProductID != nil {
		value := strings.TrimSpace(*cmd.ProductID)
		if value == "" {
			return domain.Order{}, fmt.Errorf("%w: product id cannot be blank", ErrOrderInvalidInput)
		}
		order.ProductID = value
	}
	if cmd.Quantity != nil {
		if *cmd.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
		}
		order.Quantity = *cmd.Quantity
	}
	if cmd.Status != nil {
		status, ok := domain.ParseOrderStatus(string(*cmd.Status))
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *cmd.Status)
		}
		order.Status = status
	}
	order.UpdatedOn = s.clock()

	saved, err := s.orders.Replace(ctx, order, current.Version)
	if err != nil {
		return domain.Order{}, orderErrors.wrap(err)
	}

	s.publishEvent(ctx, domain.EventEntityUpdated, orderID, "", "Order updated")
	return saved.Entity, nil
}

// DeleteOrder removes an order, returning its reservation to stock first when it still holds
// one. The reservation is claimed by a version-checked write to Cancelled before any release, so
// concurrent deletes and cancels return the units once. Deleting a missing order is a no-op.
func (s *orderService) DeleteOrder(ctx context.Context, orderID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "orders.delete")
	defer func() { endSpan(span, err) }()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	var (
		order    domain.Order
		released bool
		workCtx  = ctx
	)
	for attempt := 1; ; attempt++ {
		current, err := s.orders.Get(ctx, orderID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil
			}
			return orderErrors.wrap(err)
		}
		order = current.Entity
		if !order.HoldsReservation() {
			break
		}

		claimed := order
		claimed.Status = domain.OrderStatusCancelled
		claimed.UpdatedOn = s.clock()
		saved, err := s.orders.Replace(ctx, claimed, current.Version)
		if err == nil {
			workCtx = context.WithoutCancel(ctx)
			released, err = s.releaseReservation(workCtx, order)
			if err != nil {
				s.restoreStatus(workCtx, order, saved.Version)
				return err
			}
			break
		}
		if store.IsNotFound(err) {
			return nil
		}
		err = orderErrors.wrap(err)
		if !isOrderConflict(err) || attempt >= s.retry.attempts {
			if isOrderConflict(err) {
				return fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			return err
		}
		if err := s.retry.sleep(ctx, time.Duration(attempt)*s.retry.backoff); err != nil {
			return err
		}
	}

	// A failed delete after a release leaves a Cancelled order whose units are back in stock.
	if err := s.orders.Delete(workCtx, orderID); err != nil {
		if released {
			s.logger(workCtx, "order.delete.after_release.failed", map[string]any{
				"orderId": orderID,
				"error":   err.Error(),
			})
		}
		return orderErrors.wrap(err)
	}

	if released {
		s.publishEvent(workCtx, domain.EventEntityUpdated, order.ProductID, "", "Product updated")
	}
	s.publishEvent(workCtx, domain.EventEntityDeleted, orderID, "", "Entity deleted")
	return nil
}

// restoreStatus puts back the status of an order claimed for deletion whose release failed.
func (s *orderService) restoreStatus(ctx context.Context, order domain.Order, version store.Version) {
	order.UpdatedOn = s.clock()
	if _, err := s.orders.Replace(ctx, order, version); err != nil {
		s.logger(ctx, "order.delete.restore.failed", map[string]any{
			"orderId": order.ID,
			"status":  string(order.Status),
			"error":   err.Error(),
		})
	}
}

// releaseReservation returns the order's units to stock. A product that no longer exists makes
// the release a logged no-op.
func (s *orderService) releaseReservation(ctx context.Context, order domain.Order) (bool, error) {
	err := s.retry.do(ctx, isStockConflict, func(ctx context.Context) error {
		return s.ledger.Release(ctx, order.ProductID, order.Quantity)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrProductNotFound):
		s.logger(ctx, "order.release.product_missing", map[string]any{
			"orderId":   order.ID,
			"productId": order.ProductID,
			"quantity":  order.Quantity,
		})
		return false, nil
	default:
		return false, err
	}
}

// undoRelease re-reserves units released for an order whose status write did not land.
func (s *orderService) undoRelease(ctx context.Context, held *domain.Order) {
	if held == nil {
		return
	}
	err := s.retry.do(ctx, isStockConflict, func(ctx context.Context) error {
		return s.ledger.Reserve(ctx, held.ProductID, held.Quantity)
	})
	if err != nil {
		s.logger(ctx, "order.release.undo.failed", map[string]any{
			"orderId":   held.ID,
			"productId": held.ProductID,
			"quantity":  held.Quantity,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) compensateReserve(ctx context.Context, order domain.Order, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := s.retry.do(ctx, isStockConflict, func(ctx context.Context) error {
		return s.ledger.Release(ctx, order.ProductID, order.Quantity)
	})
	fields := map[string]any{
		"orderId":   order.ID,
		"productId": order.ProductID,
		"quantity":  order.Quantity,
		"cause":     cause.Error(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "order.create.compensation.failed", fields)
		return
	}
	s.logger(ctx, "order.create.compensated", fields)
}

func (s *orderService) publishEvent(ctx context.Context, kind domain.EventKind, entityID, relatedID, message string) {
	publishLifecycleEvent(ctx, s.events, s.logger, s.clock, domain.LifecycleEvent{
		Kind:      kind,
		EntityID:  entityID,
		RelatedID: relatedID,
		Message:   message,
	})
}

// publishLifecycleEvent stamps and sends event, logging and swallowing delivery failures.
func publishLifecycleEvent(ctx context.Context, events EventNotifier, logger func(context.Context, string, map[string]any), clock func() time.Time, event domain.LifecycleEvent) {
	if events == nil {
		return
	}
	event.Timestamp = clock()
	if err := events.Notify(ctx, event); err != nil {
		logger(ctx, "event.publish.failed", map[string]any{
			"type":     string(event.Kind),
			"entityId": event.EntityID,
			"error":    err.Error(),
		})
	}
}

func ensureOrderID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, orderIDPrefix) {
		return id
	}
	return orderIDPrefix + id
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
