package httpx

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/inventory"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/payments"
	"github.com/shopspring/decimal"
)

type memReservation struct {
	productID int64
	qty       int
	released  bool
}

type memProducts struct {
	mu           sync.Mutex
	nextID       int64
	products     map[int64]inventory.Product
	reservations map[string]*memReservation
}

func newMemProducts() *memProducts {
	return &memProducts{products: map[int64]inventory.Product{}, reservations: map[string]*memReservation{}}
}

func (s *memProducts) seed(id int64, name, price string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = inventory.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
}

func (s *memProducts) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].StockQuantity
}

func (s *memProducts) Create(_ context.Context, p *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = 1000 + s.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = *p
	return nil
}

func (s *memProducts) Get(_ context.Context, id int64) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *memProducts) get(id int64) (inventory.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return inventory.Product{}, apperr.New(apperr.CodeNotFound, "product %d not found", id)
	}
	return p, nil
}

func (s *memProducts) List(context.Context) ([]inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []inventory.Product{}
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memProducts) Reserve(_ context.Context, id int64, qty int, key string) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reservations[key]; ok && !r.released {
		return s.get(id)
	}
	p, err := s.get(id)
	if err != nil {
		return inventory.Product{}, err
	}
	if p.StockQuantity < qty {
		return inventory.Product{}, apperr.New(apperr.CodeInsufficientStock, "product %d: requested %d, available %d", id, qty, p.StockQuantity)
	}
	p.StockQuantity -= qty
	s.products[id] = p
	if key != "" {
		s.reservations[key] = &memReservation{productID: id, qty: qty}
	}
	return p, nil
}

func (s *memProducts) Release(_ context.Context, id int64, qty int, key string) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		r, ok := s.reservations[key]
		if !ok || r.released {
			return s.get(id)
		}
		r.released = true
		qty = r.qty
	}
	p, err := s.get(id)
	if err != nil {
		return inventory.Product{}, err
	}
	p.StockQuantity += qty
	s.products[id] = p
	return p, nil
}

type memOrders struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]orders.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: map[int64]orders.Order{}} }

func (s *memOrders) Create(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.orders {
		if o.IdempotencyKey != "" && ex.IdempotencyKey == o.IdempotencyKey {
			return orders.ErrDuplicateIdempotencyKey
		}
	}
	s.nextID++
	o.ID = s.nextID
	o.OrderDate = time.Now()
	o.UpdatedAt = o.OrderDate
	s.orders[o.ID] = *o
	return nil
}

func (s *memOrders) GetByID(_ context.Context, id int64) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.New(apperr.CodeNotFound, "order %d not found", id)
	}
	return o, nil
}

func (s *memOrders) GetByIdempotencyKey(_ context.Context, key string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey == key {
			return o, nil
		}
	}
	return orders.Order{}, apperr.New(apperr.CodeNotFound, "order %s not found", key)
}

func (s *memOrders) ListByUser(_ context.Context, userID int64) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []orders.Order{}
	for id := int64(1); id <= s.nextID; id++ {
		if o, ok := s.orders[id]; ok && o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrders) TransitionStatus(_ context.Context, id int64, to orders.Status) (orders.Order, orders.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, "", apperr.New(apperr.CodeNotFound, "order %d not found", id)
	}
	from := o.Status
	if from != to {
		if !orders.CanTransition(from, to) {
			return orders.Order{}, from, apperr.New(apperr.CodeInvalidTransition, "order %d: %s -> %s not allowed", id, from, to)
		}
		o.Status = to
		s.orders[id] = o
	}
	return o, from, nil
}

type memPayments struct {
	mu       sync.Mutex
	payments []payments.Payment
	synced   map[int64]bool
}

func newMemPayments() *memPayments { return &memPayments{synced: map[int64]bool{}} }

func (s *memPayments) Create(_ context.Context, p *payments.Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.payments {
		if p.Status == payments.StatusSuccess && ex.OrderID == p.OrderID && ex.Status == payments.StatusSuccess {
			return 0, apperr.New(apperr.CodeAlreadyProcessed, "order %d already paid", p.OrderID)
		}
	}
	p.ID = int64(len(s.payments) + 1)
	p.PaymentDate = time.Now()
	s.payments = append(s.payments, *p)
	if p.Status != payments.StatusSuccess {
		return 0, nil
	}
	return p.ID, nil
}

func (s *memPayments) GetByID(_ context.Context, id int64) (payments.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return payments.Payment{}, apperr.New(apperr.CodeNotFound, "payment %d not found", id)
}

func (s *memPayments) ListByUser(_ context.Context, userID int64) ([]payments.Payment, error) {
	return s.filter(func(p payments.Payment) bool { return p.UserID == userID }), nil
}

func (s *memPayments) ListByOrder(_ context.Context, orderID int64) ([]payments.Payment, error) {
	return s.filter(func(p payments.Payment) bool { return p.OrderID == orderID }), nil
}

func (s *memPayments) filter(keep func(payments.Payment) bool) []payments.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []payments.Payment{}
	for _, p := range s.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *memPayments) FindByOrderAndStatus(_ context.Context, orderID int64, status payments.Status) (payments.Payment, error) {
	if ps := s.filter(func(p payments.Payment) bool { return p.OrderID == orderID && p.Status == status }); len(ps) > 0 {
		return ps[0], nil
	}
	return payments.Payment{}, apperr.New(apperr.CodeNotFound, "no %s payment for order %d", status, orderID)
}

func (s *memPayments) MarkSynced(_ context.Context, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[taskID] = true
	return nil
}
