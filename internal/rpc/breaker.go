package rpc

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewBreaker trips after five calls in a window when at least 60% failed.
// Business answers from the peer (not found, conflict) do not count as
// failures.
func NewBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch apperr.CodeOf(err) {
			case apperr.CodeNotFound, apperr.CodeOrderNotFound, apperr.CodeInsufficientStock,
				apperr.CodeInvalidTransition, apperr.CodeInvalidArgument:
				return true
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn(
				"circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func ExecuteWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return *new(T), apperr.Wrap(apperr.CodeUnavailable, err, "%s", cb.Name())
	}
	if err != nil {
		return *new(T), err
	}

	return res.(T), nil
}
