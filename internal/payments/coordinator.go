package payments

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/ariefcatur/go-order-saga/internal/logx"
	"github.com/ariefcatur/go-order-saga/internal/retry"
	"github.com/ariefcatur/go-order-saga/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("payments")

// OrderService is the order side as seen by payments.
type OrderService interface {
	FetchOrder(ctx context.Context, orderID int64) (OrderSnapshot, error)
	UpdateStatus(ctx context.Context, orderID int64, status string) error
}

type EventPublisher interface {
	PublishEvent(env events.Envelope)
}

type Coordinator struct {
	Store   Store
	Orders  OrderService
	Gateway Gateway
	Log     *zap.Logger
	Service string

	// Status push retry policy.
	Retry retry.Policy

	// Optional.
	Events EventPublisher
}

// ProcessPayment charges the order once. A successful charge is recorded
// together with a status-sync task, then PAID is pushed to the order service;
// if the push keeps failing the reconciler finishes it and the payment is
// still returned.
func (c *Coordinator) ProcessPayment(ctx context.Context, in ProcessPaymentInput) (p Payment, err error) {
	ctx, span := tracer.Start(ctx, "Coordinator.ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", in.OrderID), attribute.Int64("user_id", in.UserID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validation.Struct(in); err != nil {
		return Payment{}, err
	}
	log := logx.Ctx(ctx, c.Log).With(
		zap.Int64("order_id", in.OrderID), zap.Int64("user_id", in.UserID), zap.String("card_last4", in.CardLast4()))

	order, err := c.Orders.FetchOrder(ctx, in.OrderID)
	if err != nil {
		return Payment{}, err
	}
	if order.UserID != in.UserID {
		return Payment{}, apperr.New(apperr.CodeOwnershipMismatch, "order %d does not belong to user %d", in.OrderID, in.UserID)
	}

	// fast path; the unique index on insert is what actually decides
	_, err = c.Store.FindByOrderAndStatus(ctx, in.OrderID, StatusSuccess)
	switch {
	case err == nil:
		return Payment{}, apperr.New(apperr.CodeAlreadyProcessed, "order %d already has a successful payment", in.OrderID)
	case !errors.Is(err, apperr.ErrNotFound):
		return Payment{}, err
	}

	approved, err := c.Gateway.Charge(ctx, Charge{
		OrderID:    in.OrderID,
		Amount:     in.Amount,
		Method:     in.PaymentMethod,
		CardNumber: in.CardNumber,
		CardExpiry: in.CardExpiryDate,
		CVV:        in.CVV,
	})
	if err != nil {
		return Payment{}, apperr.Wrap(apperr.CodeUnavailable, err, "payment gateway")
	}

	p = Payment{
		OrderID:       in.OrderID,
		UserID:        in.UserID,
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		Status:        StatusFailed,
	}
	if approved {
		p.Status = StatusSuccess
		p.TransactionID = uuid.NewString()
	}

	taskID, err := c.Store.Create(ctx, &p)
	if err != nil {
		return Payment{}, err
	}
	log.Info("payment recorded", zap.Int64("payment_id", p.ID), zap.String("status", string(p.Status)))

	if p.Status == StatusSuccess {
		c.pushPaid(ctx, log, p, taskID)
		c.publishProcessed(p)
	}
	return p, nil
}

func (c *Coordinator) pushPaid(ctx context.Context, log *zap.Logger, p Payment, taskID int64) {
	err := retry.Do(ctx, c.Retry, retryablePush, func(ctx context.Context) error {
		return c.Orders.UpdateStatus(ctx, p.OrderID, "PAID")
	})
	if err != nil {
		log.Warn("order status push deferred to reconciler", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}
	if err := c.Store.MarkSynced(context.WithoutCancel(ctx), taskID); err != nil {
		log.Warn("mark sync task done", zap.Int64("task_id", taskID), zap.Error(err))
	}
}

// retryablePush reports whether another status push could succeed.
func retryablePush(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidTransition, apperr.CodeOrderNotFound, apperr.CodeNotFound, apperr.CodeInvalidArgument:
		return false
	}
	return true
}

func (c *Coordinator) publishProcessed(p Payment) {
	if c.Events == nil {
		return
	}
	env, err := events.New(events.TypePaymentProcessed, c.Service, p.OrderID, events.PaymentProcessed{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
	})
	if err != nil {
		c.Log.Error("build event", zap.Error(err))
		return
	}
	c.Events.PublishEvent(env)
}

func (c *Coordinator) GetPaymentByID(ctx context.Context, id int64) (Payment, error) {
	return c.Store.GetByID(ctx, id)
}

func (c *Coordinator) GetPaymentsByUserID(ctx context.Context, userID int64) ([]Payment, error) {
	return c.Store.ListByUser(ctx, userID)
}

func (c *Coordinator) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]Payment, error) {
	return c.Store.ListByOrder(ctx, orderID)
}
