package rpc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// caller is the plumbing shared by the service clients: one breaker per peer,
// a per-call timeout and traced transport.
type caller struct {
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func newCaller(name string, timeout time.Duration, log *zap.Logger) caller {
	return caller{
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cb:      NewBreaker(name, log),
		timeout: timeout,
	}
}

type reply struct {
	status int
	body   []byte
}

// upstreamError is a 5xx answer; it counts against the breaker.
type upstreamError struct{ status int }

func (e upstreamError) Error() string { return fmt.Sprintf("upstream answered %d", e.status) }

func (c caller) do(ctx context.Context, method, url string) (reply, error) {
	return ExecuteWithBreaker(c.cb, func() (reply, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(callCtx, method, url, nil)
		if err != nil {
			return reply{}, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return reply{}, fmt.Errorf("%s %s: %w", method, url, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return reply{}, fmt.Errorf("read %s: %w", url, err)
		}
		if resp.StatusCode >= 500 {
			return reply{}, upstreamError{status: resp.StatusCode}
		}
		return reply{status: resp.StatusCode, body: body}, nil
	})
}

// classify tags a transport failure with code; errors that already carry one
// (an open breaker) pass through.
func classify(err error, code apperr.Code, format string, args ...any) error {
	if apperr.CodeOf(err) != apperr.CodeInternal {
		return err
	}
	return apperr.Wrap(code, err, format, args...)
}
