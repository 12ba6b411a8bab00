package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/payments"
	"go.uber.org/zap"
)

// OrderStatusClient is the payment service's view of the order service rooted
// at BaseURL (e.g. http://localhost:8083/api/orders).
type OrderStatusClient struct {
	BaseURL string
	caller
}

func NewOrderStatusClient(baseURL string, timeout time.Duration, log *zap.Logger) *OrderStatusClient {
	return &OrderStatusClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		caller:  newCaller("orders", timeout, log),
	}
}

var _ payments.OrderService = (*OrderStatusClient)(nil)

func (c *OrderStatusClient) FetchOrder(ctx context.Context, orderID int64) (payments.OrderSnapshot, error) {
	r, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", c.BaseURL, orderID))
	if err != nil {
		return payments.OrderSnapshot{}, classify(err, apperr.CodeUnavailable, "fetch order %d", orderID)
	}

	switch r.status {
	case http.StatusOK:
		var o payments.OrderSnapshot
		if err := json.Unmarshal(r.body, &o); err != nil {
			return payments.OrderSnapshot{}, apperr.Wrap(apperr.CodeUnavailable, err, "decode order %d", orderID)
		}
		return o, nil
	case http.StatusNotFound:
		return payments.OrderSnapshot{}, apperr.New(apperr.CodeOrderNotFound, "order %d not found", orderID)
	default:
		return payments.OrderSnapshot{}, apperr.New(apperr.CodeUnavailable, "fetch order %d: status %d", orderID, r.status)
	}
}

// UpdateStatus pushes a status change. InvalidTransition, OrderNotFound and
// rejected requests are final; everything else is worth retrying.
func (c *OrderStatusClient) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	u := fmt.Sprintf("%s/%d/status?%s", c.BaseURL, orderID, url.Values{"status": {status}}.Encode())
	r, err := c.do(ctx, http.MethodPut, u)
	if err != nil {
		return classify(err, apperr.CodeUnavailable, "update order %d", orderID)
	}

	switch {
	case r.status >= 200 && r.status < 300:
		return nil
	case r.status == http.StatusConflict:
		return apperr.New(apperr.CodeInvalidTransition, "order %d: cannot move to %s", orderID, status)
	case r.status == http.StatusNotFound:
		return apperr.New(apperr.CodeOrderNotFound, "order %d not found", orderID)
	case r.status >= 400 && r.status < 500 && r.status != http.StatusTooManyRequests && r.status != http.StatusRequestTimeout:
		return apperr.New(apperr.CodeInvalidArgument, "update order %d to %s: rejected with status %d", orderID, status, r.status)
	default:
		return apperr.New(apperr.CodeUnavailable, "update order %d: status %d", orderID, r.status)
	}
}
