package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	// Create inserts p. A SUCCESS payment also gets a status-sync task in the
	// same transaction; its id is returned (0 otherwise).
	Create(ctx context.Context, p *Payment) (int64, error)
	GetByID(ctx context.Context, id int64) (Payment, error)
	ListByUser(ctx context.Context, userID int64) ([]Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	FindByOrderAndStatus(ctx context.Context, orderID int64, status Status) (Payment, error)
	MarkSynced(ctx context.Context, taskID int64) error
}

// TaskStore is the reconciler's side of the status-sync table.
type TaskStore interface {
	// ClaimDue leases up to limit due pending tasks for lease.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]SyncTask, error)
	MarkSynced(ctx context.Context, taskID int64) error
	MarkFailed(ctx context.Context, taskID int64, reason string) error
	Reschedule(ctx context.Context, taskID int64, next time.Time, reason string) error
}

// SyncLease is how long a freshly written task is left to the inline push
// before the reconciler may pick it up.
const SyncLease = 30 * time.Second

const uniqSuccessPerOrder = "uniq_payments_order_success"

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, p *Payment) (int64, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer postgres.Rollback(ctx, tx)

	var txnID *string
	if p.TransactionID != "" {
		txnID = &p.TransactionID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payments(order_id, user_id, amount, payment_method, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, payment_date`,
		p.OrderID, p.UserID, p.Amount, p.PaymentMethod, p.Status, txnID,
	).Scan(&p.ID, &p.PaymentDate)
	if err != nil {
		if postgres.IsUniqueViolation(err, uniqSuccessPerOrder) {
			return 0, apperr.Wrap(apperr.CodeAlreadyProcessed, err, "order %d already has a successful payment", p.OrderID)
		}
		return 0, fmt.Errorf("insert payment: %w", err)
	}

	var taskID int64
	if p.Status == StatusSuccess {
		err = tx.QueryRow(ctx, `
			INSERT INTO order_status_sync(payment_id, order_id, target_status, next_retry)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			p.ID, p.OrderID, "PAID", time.Now().Add(SyncLease),
		).Scan(&taskID)
		if err != nil {
			return 0, fmt.Errorf("insert sync task: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return taskID, nil
}

const paymentColumns = `id, order_id, user_id, amount, payment_method, payment_date, status, transaction_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var txnID *string
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.PaymentMethod, &p.PaymentDate, &p.Status, &txnID); err != nil {
		return Payment{}, err
	}
	if txnID != nil {
		p.TransactionID = *txnID
	}
	return p, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, apperr.New(apperr.CodeNotFound, "payment %d not found", id)
	}
	return p, err
}

func (r *Repo) FindByOrderAndStatus(ctx context.Context, orderID int64, status Status) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1 AND status = $2
		ORDER BY id LIMIT 1`, orderID, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, apperr.New(apperr.CodeNotFound, "no %s payment for order %d", status, orderID)
	}
	return p, err
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY payment_date, id`, userID)
}

func (r *Repo) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY payment_date, id`, orderID)
}

func (r *Repo) list(ctx context.Context, sql string, arg int64) ([]Payment, error) {
	rows, err := r.DB.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]SyncTask, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer postgres.Rollback(ctx, tx)

	rows, err := tx.Query(ctx, `
		SELECT id, payment_id, order_id, target_status, attempts
		FROM order_status_sync
		WHERE state = $1 AND next_retry <= NOW()
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, syncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SyncTask, error) {
		var t SyncTask
		err := row.Scan(&t.ID, &t.PaymentID, &t.OrderID, &t.TargetStatus, &t.Attempts)
		return t, err
	})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	_, err = tx.Exec(ctx, `
		UPDATE order_status_sync SET next_retry = $2, updated_at = NOW()
		WHERE id = ANY($1)`, ids, time.Now().Add(lease))
	if err != nil {
		return nil, fmt.Errorf("lease sync tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *Repo) MarkSynced(ctx context.Context, taskID int64) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE order_status_sync SET state = $2, updated_at = NOW()
		WHERE id = $1`, taskID, syncDone)
	return err
}

func (r *Repo) MarkFailed(ctx context.Context, taskID int64, reason string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE order_status_sync SET state = $2, last_error = $3, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1`, taskID, syncFailed, reason)
	return err
}

func (r *Repo) Reschedule(ctx context.Context, taskID int64, next time.Time, reason string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE order_status_sync SET attempts = attempts + 1, next_retry = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`, taskID, next, reason)
	return err
}
