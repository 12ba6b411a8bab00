package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog snapshot read from the inventory service.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	OrderDate       time.Time       `json:"orderDate"`
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress string          `json:"shippingAddress"`
	OrderItems      []OrderItem     `json:"orderItems"`
	IdempotencyKey  string          `json:"-"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem prices are snapshots taken at reservation time.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"-"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderInput struct {
	UserID          int64       `json:"userId" validate:"required,gt=0"`
	ShippingAddress string      `json:"shippingAddress" validate:"max=500"`
	Items           []ItemInput `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey  string      `json:"-"`
}
