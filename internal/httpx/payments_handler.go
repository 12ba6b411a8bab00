package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/payments"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentsHandler struct {
	Payments *payments.Coordinator
	Log      *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/process", h.process)
		r.Get("/user/{userId}", h.listByUser)
		r.Get("/order/{orderId}", h.listByOrder)
		r.Get("/{id}", h.getPayment)
	})
}

func (h *PaymentsHandler) process(w http.ResponseWriter, r *http.Request) {
	var in payments.ProcessPaymentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Payments.ProcessPayment(ctx, in)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PaymentsHandler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Payments.GetPaymentByID(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) listByUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "userId", h.Payments.GetPaymentsByUserID)
}

func (h *PaymentsHandler) listByOrder(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "orderId", h.Payments.GetPaymentsByOrderID)
}

func (h *PaymentsHandler) list(w http.ResponseWriter, r *http.Request, param string, find func(context.Context, int64) ([]payments.Payment, error)) {
	id, err := pathID(r, param)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := find(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
