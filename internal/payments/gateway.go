package payments

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Charge struct {
	OrderID    int64
	Amount     decimal.Decimal
	Method     string
	CardNumber string
	CardExpiry string
	CVV        string
}

// Gateway charges a card. A transport failure is an error; a refusal is
// approved == false.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (approved bool, err error)
}

// MockGateway approves every charge.
type MockGateway struct {
	Log *zap.Logger
}

func (g MockGateway) Charge(ctx context.Context, c Charge) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	last4 := c.CardNumber
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	g.Log.Debug("mock gateway charge",
		zap.Int64("order_id", c.OrderID), zap.String("amount", c.Amount.StringFixed(2)), zap.String("card_last4", last4))
	return true, nil
}
