package inventory

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
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context) ([]Product, error)
	// Reserve atomically takes qty units if available. With a key the call is
	// idempotent: replaying an active reservation takes nothing.
	Reserve(ctx context.Context, id int64, qty int, key string) (Product, error)
	// Release gives back a keyed reservation, or qty units when key is empty.
	// Releasing an unknown or already released key changes nothing.
	Release(ctx context.Context, id int64, qty int, key string) (Product, error)
}

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, name, price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) Create(ctx context.Context, p *Product) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(name, price, stock)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Price, p.StockQuantity,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.New(apperr.CodeNotFound, "product %d not found", id)
	}
	return p, err
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Reserve(ctx context.Context, id int64, qty int, key string) (Product, error) {
	if qty <= 0 {
		return Product{}, apperr.New(apperr.CodeInvalidArgument, "quantity must be positive, got %d", qty)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer postgres.Rollback(ctx, tx)

	existing := false
	if key != "" {
		var productID int64
		var status string
		err := tx.QueryRow(ctx, `
			SELECT product_id, status FROM stock_reservations
			WHERE reservation_key = $1 FOR UPDATE`, key).Scan(&productID, &status)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return Product{}, fmt.Errorf("lock reservation: %w", err)
		case productID != id:
			return Product{}, apperr.New(apperr.CodeInvalidArgument, "reservation %s belongs to product %d", key, productID)
		case status == reservationReserved:
			return r.Get(ctx, id)
		default:
			existing = true
		}
	}

	// single conditional statement; stock never goes below zero
	p, err := scanProduct(tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, r.whyNotReserved(ctx, tx, id, qty)
	}
	if err != nil {
		return Product{}, fmt.Errorf("decrement stock: %w", err)
	}

	if key != "" {
		if existing {
			_, err = tx.Exec(ctx, `
				UPDATE stock_reservations SET status = $2, quantity = $3, updated_at = NOW()
				WHERE reservation_key = $1`, key, reservationReserved, qty)
			if err != nil {
				return Product{}, fmt.Errorf("reactivate reservation: %w", err)
			}
		} else {
			ct, err := tx.Exec(ctx, `
				INSERT INTO stock_reservations(reservation_key, product_id, quantity, status)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (reservation_key) DO NOTHING`, key, id, qty, reservationReserved)
			if err != nil {
				return Product{}, fmt.Errorf("record reservation: %w", err)
			}
			if ct.RowsAffected() == 0 {
				// a concurrent call with the same key got there first; ours rolls back
				postgres.Rollback(ctx, tx)
				return r.Get(ctx, id)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *Repo) whyNotReserved(ctx context.Context, tx pgx.Tx, id int64, qty int) error {
	var stock int
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.CodeNotFound, "product %d not found", id)
	}
	if err != nil {
		return err
	}
	return apperr.New(apperr.CodeInsufficientStock, "product %d: requested %d, available %d", id, qty, stock)
}

func (r *Repo) Release(ctx context.Context, id int64, qty int, key string) (Product, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer postgres.Rollback(ctx, tx)

	if key != "" {
		var productID int64
		err := tx.QueryRow(ctx, `
			UPDATE stock_reservations SET status = $2, updated_at = NOW()
			WHERE reservation_key = $1 AND status = $3
			RETURNING product_id, quantity`, key, reservationReleased, reservationReserved).Scan(&productID, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.Get(ctx, id)
		}
		if err != nil {
			return Product{}, fmt.Errorf("release reservation: %w", err)
		}
		if productID != id {
			return Product{}, apperr.New(apperr.CodeInvalidArgument, "reservation %s belongs to product %d", key, productID)
		}
	} else if qty <= 0 {
		return Product{}, apperr.New(apperr.CodeInvalidArgument, "quantity must be positive, got %d", qty)
	}

	p, err := scanProduct(tx.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.New(apperr.CodeNotFound, "product %d not found", id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("restock: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	return p, nil
}
