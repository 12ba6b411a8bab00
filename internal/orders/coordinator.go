package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/ariefcatur/go-order-saga/internal/logx"
	"github.com/ariefcatur/go-order-saga/internal/retry"
	"github.com/ariefcatur/go-order-saga/internal/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("orders")

// Inventory is the product service as seen by the order saga. Reserve and
// Release are idempotent per reservation key.
type Inventory interface {
	FetchProduct(ctx context.Context, productID int64) (Product, error)
	Reserve(ctx context.Context, productID int64, quantity int, key string) error
	Release(ctx context.Context, productID int64, quantity int, key string) error
}

type EventPublisher interface {
	PublishEvent(env events.Envelope)
}

type StatusBroadcaster interface {
	BroadcastStatus(orderID int64, status Status)
}

type Coordinator struct {
	Store     Store
	Inventory Inventory
	Log       *zap.Logger
	Service   string

	// Compensation retry policy.
	Retry retry.Policy

	// Optional.
	Created       EventPublisher
	StatusChanged EventPublisher
	Watchers      StatusBroadcaster
}

// CreateOrder runs the order saga: every line is fetched and reserved in
// request order, then the order is persisted as PENDING. Any failure releases
// the reservations already taken. created is false when an order with the
// same idempotency key already existed.
func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (o Order, created bool, err error) {
	ctx, span := tracer.Start(ctx, "Coordinator.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", in.UserID), attribute.Int("items", len(in.Items)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validation.Struct(in); err != nil {
		return Order{}, false, err
	}

	if in.IdempotencyKey != "" {
		existing, err := c.Store.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return Order{}, false, err
		}
	}

	// reservations are scoped to this attempt; the idempotency key only
	// decides which attempt's order is kept
	wf := &workflow{key: uuid.NewString(), policy: c.Retry, log: logx.Ctx(ctx, c.Log)}
	defer wf.compensateIfNeeded(ctx, &err)

	o = Order{
		UserID:          in.UserID,
		Status:          StatusPending,
		TotalAmount:     decimal.Zero,
		ShippingAddress: in.ShippingAddress,
		IdempotencyKey:  in.IdempotencyKey,
	}
	for i, line := range in.Items {
		item, err := c.reserveLine(ctx, wf, i, line)
		if err != nil {
			return Order{}, false, err
		}
		o.OrderItems = append(o.OrderItems, item)
		o.TotalAmount = o.TotalAmount.Add(item.Subtotal())
	}

	if err := c.Store.Create(ctx, &o); err != nil {
		if !errors.Is(err, ErrDuplicateIdempotencyKey) {
			return Order{}, false, fmt.Errorf("persist order: %w", err)
		}
		// a concurrent request with the same key won; give our stock back
		wf.compensate(ctx, err)
		existing, err := c.Store.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return Order{}, false, err
		}
		return existing, false, nil
	}

	logx.Ctx(ctx, c.Log).Info("order created",
		zap.Int64("order_id", o.ID), zap.Int64("user_id", o.UserID), zap.String("total", o.TotalAmount.StringFixed(2)))
	c.publishCreated(o)
	return o, true, nil
}

func (c *Coordinator) reserveLine(ctx context.Context, wf *workflow, i int, line ItemInput) (OrderItem, error) {
	p, err := c.Inventory.FetchProduct(ctx, line.ProductID)
	if err != nil {
		return OrderItem{}, fmt.Errorf("line %d: %w", i, err)
	}
	if p.StockQuantity < line.Quantity {
		return OrderItem{}, apperr.New(apperr.CodeInsufficientStock,
			"product %d: requested %d, available %d", line.ProductID, line.Quantity, p.StockQuantity)
	}

	key := fmt.Sprintf("%s:%d", wf.key, i)
	release := func(ctx context.Context) error {
		return c.Inventory.Release(ctx, line.ProductID, line.Quantity, key)
	}

	err = c.Inventory.Reserve(ctx, line.ProductID, line.Quantity, key)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrInsufficientStock):
		return OrderItem{}, fmt.Errorf("line %d: %w", i, err)
	default:
		// the reservation may have landed; releasing an unknown key is a no-op
		wf.onFailure("release "+key, release)
		return OrderItem{}, apperr.Wrap(apperr.CodeInventoryUpdateFailed, err, "reserve product %d", line.ProductID)
	}
	wf.onFailure("release "+key, release)

	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    line.Quantity,
		Price:       p.Price,
	}, nil
}

func (c *Coordinator) GetOrderByID(ctx context.Context, id int64) (Order, error) {
	return c.Store.GetByID(ctx, id)
}

func (c *Coordinator) GetOrdersByUserID(ctx context.Context, userID int64) ([]Order, error) {
	return c.Store.ListByUser(ctx, userID)
}

// UpdateOrderStatus applies a state-machine transition. Setting the status the
// order already has succeeds without side effects.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, id int64, status string) (Order, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", id), attribute.String("status", status))

	to, ok := ParseStatus(status)
	if !ok {
		return Order{}, apperr.New(apperr.CodeInvalidArgument, "unknown order status %q", status)
	}

	o, from, err := c.Store.TransitionStatus(ctx, id, to)
	if err != nil {
		span.RecordError(err)
		return Order{}, err
	}
	if from == to {
		return o, nil
	}

	logx.Ctx(ctx, c.Log).Info("order status changed",
		zap.Int64("order_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	c.publishStatusChanged(o.ID, from, to)
	if c.Watchers != nil {
		c.Watchers.BroadcastStatus(o.ID, to)
	}
	return o, nil
}

func (c *Coordinator) publishCreated(o Order) {
	if c.Created == nil {
		return
	}
	items := make([]events.OrderItem, 0, len(o.OrderItems))
	for _, it := range o.OrderItems {
		items = append(items, events.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	env, err := events.New(events.TypeOrderCreated, c.Service, o.ID, events.OrderCreated{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       items,
		TotalAmount: o.TotalAmount,
	})
	if err != nil {
		c.Log.Error("build event", zap.Error(err))
		return
	}
	c.Created.PublishEvent(env)
}

func (c *Coordinator) publishStatusChanged(orderID int64, from, to Status) {
	if c.StatusChanged == nil {
		return
	}
	env, err := events.New(events.TypeOrderStatusChanged, c.Service, orderID, events.OrderStatusChanged{
		OrderID: orderID,
		From:    string(from),
		To:      string(to),
	})
	if err != nil {
		c.Log.Error("build event", zap.Error(err))
		return
	}
	c.StatusChanged.PublishEvent(env)
}
