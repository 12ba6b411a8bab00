package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// TransitionStatus moves the order to `to` and returns it along with the
	// status it had before. Re-applying the current status changes nothing.
	TransitionStatus(ctx context.Context, id int64, to Status) (Order, Status, error)
}

// ErrDuplicateIdempotencyKey is returned by Create when another order already
// claimed the key.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

type Repo struct{ DB *pgxpool.Pool }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Create inserts the order and its items in one transaction and fills in the
// generated ids and timestamps.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer postgres.Rollback(ctx, tx)

	var key *string
	if o.IdempotencyKey != "" {
		key = &o.IdempotencyKey
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, status, total_amount, shipping_address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_date, updated_at`,
		o.UserID, o.Status, o.TotalAmount, o.ShippingAddress, key,
	).Scan(&o.ID, &o.OrderDate, &o.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "orders_idempotency_key_key") {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.OrderItems {
		it := &o.OrderItems[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, position, product_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.Price,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

const orderColumns = `id, user_id, order_date, status, total_amount, shipping_address, idempotency_key, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var key *string
	err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &o.Status, &o.TotalAmount, &o.ShippingAddress, &key, &o.UpdatedAt)
	if key != nil {
		o.IdempotencyKey = *key
	}
	return o, err
}

func (r *Repo) GetByID(ctx context.Context, id int64) (Order, error) {
	return r.getOne(ctx, r.DB, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, key string) (Order, error) {
	return r.getOne(ctx, r.DB, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
}

func (r *Repo) getOne(ctx context.Context, q querier, sql string, arg any) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.New(apperr.CodeNotFound, "order %v not found", arg)
	}
	if err != nil {
		return Order{}, fmt.Errorf("select order: %w", err)
	}
	items, err := loadItems(ctx, q, []int64{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.OrderItems = items[o.ID]
	return o, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY order_date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := loadItems(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].OrderItems = items[out[i].ID]
	}
	return out, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (r *Repo) TransitionStatus(ctx context.Context, id int64, to Status) (Order, Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, "", err
	}
	defer postgres.Rollback(ctx, tx)

	var from Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, "", apperr.New(apperr.CodeNotFound, "order %d not found", id)
	}
	if err != nil {
		return Order{}, "", fmt.Errorf("lock order: %w", err)
	}

	if from != to {
		if !CanTransition(from, to) {
			return Order{}, from, apperr.New(apperr.CodeInvalidTransition, "order %d: %s -> %s not allowed", id, from, to)
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, to); err != nil {
			return Order{}, from, fmt.Errorf("update status: %w", err)
		}
	}

	o, err := r.getOne(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return Order{}, from, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, from, err
	}
	return o, from, nil
}
