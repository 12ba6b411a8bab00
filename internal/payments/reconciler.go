package payments

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maxSyncAttempts bounds how often one task is pushed before it is abandoned.
const maxSyncAttempts = 6

// Reconciler finishes status pushes that the inline retry gave up on.
type Reconciler struct {
	Tasks    TaskStore
	Orders   OrderService
	Log      *zap.Logger
	Interval time.Duration
	Batch    int
}

// Run ticks until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.Log.Error("status sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce pushes one batch of due tasks and returns how many were claimed.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	tasks, err := r.Tasks.ClaimDue(ctx, r.Batch, SyncLease)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		r.push(ctx, t)
	}
	return len(tasks), nil
}

func (r *Reconciler) push(ctx context.Context, t SyncTask) {
	log := r.Log.With(zap.Int64("task_id", t.ID), zap.Int64("order_id", t.OrderID), zap.Int("attempts", t.Attempts))

	pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := r.Orders.UpdateStatus(pushCtx, t.OrderID, t.TargetStatus)
	cancel()

	switch {
	case err == nil:
		if err := r.Tasks.MarkSynced(ctx, t.ID); err != nil {
			log.Warn("mark sync task done", zap.Error(err))
			return
		}
		log.Info("order status synced", zap.String("status", t.TargetStatus))
	case !retryablePush(err):
		log.Error("order status sync abandoned", zap.Error(err))
		r.markFailed(ctx, log, t, err)
	case t.Attempts+1 >= maxSyncAttempts:
		log.Error("order status sync out of attempts", zap.Error(err))
		r.markFailed(ctx, log, t, err)
	default:
		next := time.Now().Add(retryDelay(t.Attempts + 1))
		log.Warn("order status sync will retry", zap.Time("next_retry", next), zap.Error(err))
		if err := r.Tasks.Reschedule(ctx, t.ID, next, err.Error()); err != nil {
			log.Warn("reschedule sync task", zap.Error(err))
		}
	}
}

func (r *Reconciler) markFailed(ctx context.Context, log *zap.Logger, t SyncTask, cause error) {
	if err := r.Tasks.MarkFailed(ctx, t.ID, cause.Error()); err != nil {
		log.Warn("mark sync task failed", zap.Error(err))
	}
}

func retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		attempts = 6
	}
	delay := time.Duration(1<<attempts) * time.Second
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
