package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"go.uber.org/zap"
)

// InventoryClient talks to the product service rooted at BaseURL
// (e.g. http://localhost:8082/api/products).
type InventoryClient struct {
	BaseURL string
	caller
}

func NewInventoryClient(baseURL string, timeout time.Duration, log *zap.Logger) *InventoryClient {
	return &InventoryClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		caller:  newCaller("inventory", timeout, log),
	}
}

var _ orders.Inventory = (*InventoryClient)(nil)

func (c *InventoryClient) FetchProduct(ctx context.Context, productID int64) (orders.Product, error) {
	r, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", c.BaseURL, productID))
	if err != nil {
		return orders.Product{}, classify(err, apperr.CodeUnavailable, "fetch product %d", productID)
	}

	switch r.status {
	case http.StatusOK:
		var p orders.Product
		if err := json.Unmarshal(r.body, &p); err != nil {
			return orders.Product{}, apperr.Wrap(apperr.CodeUnavailable, err, "decode product %d", productID)
		}
		return p, nil
	case http.StatusNotFound:
		return orders.Product{}, apperr.New(apperr.CodeNotFound, "product %d not found", productID)
	default:
		return orders.Product{}, apperr.New(apperr.CodeUnavailable, "fetch product %d: status %d", productID, r.status)
	}
}

// Reserve takes quantity units under key. Replaying the same key does not
// take stock twice.
func (c *InventoryClient) Reserve(ctx context.Context, productID int64, quantity int, key string) error {
	r, err := c.do(ctx, http.MethodPut, c.stockURL(productID, "stock", quantity, key))
	if err != nil {
		return classify(err, apperr.CodeInventoryUpdateFailed, "reserve product %d", productID)
	}

	switch r.status {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return apperr.New(apperr.CodeInsufficientStock, "product %d: insufficient stock for %d", productID, quantity)
	case http.StatusNotFound:
		return apperr.New(apperr.CodeNotFound, "product %d not found", productID)
	default:
		return apperr.New(apperr.CodeInventoryUpdateFailed, "reserve product %d: status %d", productID, r.status)
	}
}

// Release undoes the reservation under key. Unknown keys are a no-op on the
// product service.
func (c *InventoryClient) Release(ctx context.Context, productID int64, quantity int, key string) error {
	r, err := c.do(ctx, http.MethodPut, c.stockURL(productID, "stock/release", quantity, key))
	if err != nil {
		return classify(err, apperr.CodeUnavailable, "release product %d", productID)
	}

	switch r.status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return apperr.New(apperr.CodeNotFound, "product %d not found", productID)
	default:
		return apperr.New(apperr.CodeInventoryUpdateFailed, "release product %d: status %d", productID, r.status)
	}
}

func (c *InventoryClient) stockURL(productID int64, path string, quantity int, key string) string {
	q := url.Values{}
	q.Set("quantity", strconv.Itoa(quantity))
	if key != "" {
		q.Set("reservation", key)
	}
	return fmt.Sprintf("%s/%d/%s?%s", c.BaseURL, productID, path, q.Encode())
}
