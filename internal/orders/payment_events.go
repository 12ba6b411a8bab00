package orders

import (
	"context"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/events"
	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// PaymentEvents marks orders PAID from payment.processed events. It backs up
// the synchronous status push made by the payment service.
type PaymentEvents struct {
	Coordinator *Coordinator
	Dedup       Deduper
	Log         *zap.Logger
}

// HandlePaymentProcessed is installed as the consumer handler.
func (h *PaymentEvents) HandlePaymentProcessed(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		h.Log.Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != events.TypePaymentProcessed {
		return nil
	}

	first, err := h.Dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[events.PaymentProcessed](env.Payload)
	if err != nil {
		h.Log.Warn("dropping bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if p.Status != "SUCCESS" {
		return nil
	}

	_, err = h.Coordinator.UpdateOrderStatus(ctx, p.OrderID, string(StatusPaid))
	if err == nil {
		return nil
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidTransition, apperr.CodeNotFound:
		h.Log.Warn("payment event not applicable",
			zap.Int64("order_id", p.OrderID), zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	if ferr := h.Dedup.Forget(ctx, env.EventID); ferr != nil {
		h.Log.Warn("dedup forget failed", zap.String("event_id", env.EventID), zap.Error(ferr))
	}
	return err
}
