package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]Order
	createErr error
}

func newMemStore() *memStore {
	return &memStore{orders: map[int64]Order{}}
}

func (s *memStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if o.IdempotencyKey != "" {
		for _, ex := range s.orders {
			if ex.IdempotencyKey == o.IdempotencyKey {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	s.nextID++
	o.ID = s.nextID
	o.OrderDate = time.Now()
	o.UpdatedAt = o.OrderDate
	for i := range o.OrderItems {
		o.OrderItems[i].ID = int64(i + 1)
		o.OrderItems[i].OrderID = o.ID
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, apperr.New(apperr.CodeNotFound, "order %d not found", id)
	}
	return o, nil
}

func (s *memStore) GetByIdempotencyKey(_ context.Context, key string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey == key {
			return o, nil
		}
	}
	return Order{}, apperr.New(apperr.CodeNotFound, "order %s not found", key)
}

func (s *memStore) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Order{}
	for id := int64(1); id <= s.nextID; id++ {
		if o, ok := s.orders[id]; ok && o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) TransitionStatus(_ context.Context, id int64, to Status) (Order, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, "", apperr.New(apperr.CodeNotFound, "order %d not found", id)
	}
	from := o.Status
	if from != to {
		if !CanTransition(from, to) {
			return Order{}, from, apperr.New(apperr.CodeInvalidTransition, "order %d: %s -> %s not allowed", id, from, to)
		}
		o.Status = to
		s.orders[id] = o
	}
	return o, from, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type reservation struct {
	productID int64
	quantity  int
	released  bool
}

type fakeInventory struct {
	mu           sync.Mutex
	products     map[int64]Product
	reservations map[string]*reservation

	// per-product fault injection
	lostRace     map[int64]bool  // fetch shows stock, reserve reports insufficient
	reserveErr   map[int64]error // reserve fails
	applyThenErr map[int64]bool  // reserve applies, then reports reserveErr

	// runs once, outside the lock, before the first fetch of a product
	beforeFetch map[int64]func()

	releaseFailures int
	releases        int
	fetches         int
}

func newFakeInventory(products ...Product) *fakeInventory {
	inv := &fakeInventory{
		products:     map[int64]Product{},
		reservations: map[string]*reservation{},
		lostRace:     map[int64]bool{},
		reserveErr:   map[int64]error{},
		applyThenErr: map[int64]bool{},
		beforeFetch:  map[int64]func(){},
	}
	for _, p := range products {
		inv.products[p.ID] = p
	}
	return inv
}

func (f *fakeInventory) FetchProduct(_ context.Context, id int64) (Product, error) {
	f.mu.Lock()
	hook := f.beforeFetch[id]
	delete(f.beforeFetch, id)
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	p, ok := f.products[id]
	if !ok {
		return Product{}, apperr.New(apperr.CodeNotFound, "product %d not found", id)
	}
	return p, nil
}

func (f *fakeInventory) Reserve(_ context.Context, id int64, qty int, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.reserveErr[id]; ok && !f.applyThenErr[id] {
		return err
	}
	if f.lostRace[id] {
		return apperr.New(apperr.CodeInsufficientStock, "product %d: insufficient stock", id)
	}
	if r, ok := f.reservations[key]; ok && !r.released {
		return nil
	}
	p, ok := f.products[id]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "product %d not found", id)
	}
	if p.StockQuantity < qty {
		return apperr.New(apperr.CodeInsufficientStock, "product %d: insufficient stock", id)
	}
	p.StockQuantity -= qty
	f.products[id] = p
	f.reservations[key] = &reservation{productID: id, quantity: qty}
	if f.applyThenErr[id] {
		return f.reserveErr[id]
	}
	return nil
}

func (f *fakeInventory) Release(_ context.Context, id int64, _ int, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.releaseFailures > 0 {
		f.releaseFailures--
		return errors.New("inventory temporarily down")
	}
	r, ok := f.reservations[key]
	if !ok || r.released {
		return nil
	}
	r.released = true
	p := f.products[r.productID]
	p.StockQuantity += r.quantity
	f.products[r.productID] = p
	return nil
}

func (f *fakeInventory) failReserve(id int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveErr[id] = err
}

func (f *fakeInventory) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].StockQuantity
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) PublishEvent(env events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []Status
}

func (b *recordingBroadcaster) BroadcastStatus(_ int64, s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, s)
}

func product(id int64, name, price string, stock int) Product {
	return Product{ID: id, Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
}
