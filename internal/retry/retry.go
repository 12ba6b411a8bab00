package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	Attempts uint64
	Initial  time.Duration
	Max      time.Duration
}

// Do runs fn until it succeeds, the attempts are used up, ctx ends, or
// retryable reports false for the returned error. The last error is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		eb.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		eb.MaxInterval = p.Max
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if p.Attempts > 0 {
		b = backoff.WithMaxRetries(b, p.Attempts-1)
	}

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
