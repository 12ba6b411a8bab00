package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/retry"
	"go.uber.org/zap"
)

type compensation struct {
	name string
	undo func(context.Context) error
}

// workflow collects the undo action of every step that has taken effect and
// replays them newest-first when the workflow fails.
type workflow struct {
	key    string
	undo   []compensation
	policy retry.Policy
	log    *zap.Logger
}

func (w *workflow) onFailure(name string, undo func(context.Context) error) {
	w.undo = append(w.undo, compensation{name: name, undo: undo})
}

// compensateIfNeeded is deferred with the address of the caller's named error.
func (w *workflow) compensateIfNeeded(ctx context.Context, errp *error) {
	if *errp != nil {
		w.compensate(ctx, *errp)
	}
}

// compensate runs the registered undo actions newest-first, once.
func (w *workflow) compensate(ctx context.Context, cause error) {
	if len(w.undo) == 0 {
		return
	}

	// the request may already be cancelled; compensation must still run
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	w.log.Warn("saga failed, compensating",
		zap.String("workflow", w.key), zap.Int("steps", len(w.undo)), zap.Error(cause))

	for i := len(w.undo) - 1; i >= 0; i-- {
		c := w.undo[i]
		err := retry.Do(ctx, w.policy, retryableCompensation, c.undo)
		if err != nil {
			w.log.Error("compensation failed",
				zap.String("workflow", w.key), zap.String("step", c.name), zap.Error(err))
		}
	}
	w.undo = nil
}

func retryableCompensation(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound, apperr.CodeInvalidArgument:
		return false
	}
	return true
}
