package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/inventory"
	"github.com/ariefcatur/go-order-saga/internal/validation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductsHandler struct {
	Store inventory.Store
	Log   *zap.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}/stock", h.reserve)
		r.Put("/{id}/stock/release", h.release)
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.List(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var p inventory.Product
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if err := validation.Struct(p); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.Create(ctx, &p); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.Get(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) reserve(w http.ResponseWriter, r *http.Request) {
	h.stock(w, r, true, h.Store.Reserve)
}

func (h *ProductsHandler) release(w http.ResponseWriter, r *http.Request) {
	h.stock(w, r, false, h.Store.Release)
}

type stockFunc func(ctx context.Context, id int64, qty int, key string) (inventory.Product, error)

// stock parses ?quantity=N&reservation=K. A keyed release may omit quantity.
func (h *ProductsHandler) stock(w http.ResponseWriter, r *http.Request, needQty bool, apply stockFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	q := r.URL.Query()
	key := q.Get("reservation")

	qty := 0
	if raw := q.Get("quantity"); raw != "" || needQty || key == "" {
		qty, err = strconv.Atoi(raw)
		if err != nil || qty <= 0 {
			writeError(w, r, h.Log, apperr.New(apperr.CodeInvalidArgument, "quantity must be a positive integer"))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := apply(ctx, id, qty, key)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
