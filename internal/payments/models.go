package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Payment is written once per attempt and never changed afterwards.
type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"orderId"`
	UserID        int64           `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentDate   time.Time       `json:"paymentDate"`
	Status        Status          `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// OrderSnapshot is what the payment side needs to know about an order.
type OrderSnapshot struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type ProcessPaymentInput struct {
	OrderID        int64           `json:"orderId" validate:"required,gt=0"`
	UserID         int64           `json:"userId" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethod  string          `json:"paymentMethod" validate:"required,max=50"`
	CardNumber     string          `json:"cardNumber" validate:"required,number,min=12,max=19"`
	CardExpiryDate string          `json:"cardExpiryDate" validate:"required,cardexpiry"`
	CVV            string          `json:"cvv" validate:"required,number,min=3,max=4"`
}

// CardLast4 is the only part of the card that may be logged.
func (in ProcessPaymentInput) CardLast4() string {
	if len(in.CardNumber) <= 4 {
		return in.CardNumber
	}
	return in.CardNumber[len(in.CardNumber)-4:]
}

// SyncTask is a pending push of a status to the order service.
type SyncTask struct {
	ID           int64
	PaymentID    int64
	OrderID      int64
	TargetStatus string
	Attempts     int
}

const (
	syncPending = "pending"
	syncDone    = "done"
	syncFailed  = "failed"
)
