package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/shopspring/decimal"
)

type memTask struct {
	SyncTask
	state     string
	nextRetry time.Time
	lastError string
}

type memStore struct {
	mu       sync.Mutex
	payments []Payment
	tasks    []*memTask
}

func (s *memStore) Create(_ context.Context, p *Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == StatusSuccess {
		for _, ex := range s.payments {
			if ex.OrderID == p.OrderID && ex.Status == StatusSuccess {
				return 0, apperr.New(apperr.CodeAlreadyProcessed, "order %d already has a successful payment", p.OrderID)
			}
		}
	}
	p.ID = int64(len(s.payments) + 1)
	p.PaymentDate = time.Now()
	s.payments = append(s.payments, *p)

	if p.Status != StatusSuccess {
		return 0, nil
	}
	t := &memTask{
		SyncTask:  SyncTask{ID: int64(len(s.tasks) + 1), PaymentID: p.ID, OrderID: p.OrderID, TargetStatus: "PAID"},
		state:     syncPending,
		nextRetry: time.Now().Add(SyncLease),
	}
	s.tasks = append(s.tasks, t)
	return t.ID, nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return Payment{}, apperr.New(apperr.CodeNotFound, "payment %d not found", id)
}

func (s *memStore) ListByUser(_ context.Context, userID int64) ([]Payment, error) {
	return s.filter(func(p Payment) bool { return p.UserID == userID }), nil
}

func (s *memStore) ListByOrder(_ context.Context, orderID int64) ([]Payment, error) {
	return s.filter(func(p Payment) bool { return p.OrderID == orderID }), nil
}

func (s *memStore) filter(keep func(Payment) bool) []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Payment{}
	for _, p := range s.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) FindByOrderAndStatus(_ context.Context, orderID int64, status Status) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.OrderID == orderID && p.Status == status {
			return p, nil
		}
	}
	return Payment{}, apperr.New(apperr.CodeNotFound, "no %s payment for order %d", status, orderID)
}

func (s *memStore) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]SyncTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SyncTask
	now := time.Now()
	for _, t := range s.tasks {
		if len(out) == limit {
			break
		}
		if t.state == syncPending && !t.nextRetry.After(now) {
			t.nextRetry = now.Add(lease)
			out = append(out, t.SyncTask)
		}
	}
	return out, nil
}

func (s *memStore) MarkSynced(_ context.Context, id int64) error {
	return s.update(id, func(t *memTask) { t.state = syncDone })
}

func (s *memStore) MarkFailed(_ context.Context, id int64, reason string) error {
	return s.update(id, func(t *memTask) {
		t.state = syncFailed
		t.lastError = reason
		t.Attempts++
	})
}

func (s *memStore) Reschedule(_ context.Context, id int64, next time.Time, reason string) error {
	return s.update(id, func(t *memTask) {
		t.nextRetry = next
		t.lastError = reason
		t.Attempts++
	})
}

func (s *memStore) update(id int64, fn func(*memTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			fn(t)
			return nil
		}
	}
	return errors.New("no such task")
}

func (s *memStore) task(id int64) memTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id-1]
}

// expireLeases makes every pending task due now.
func (s *memStore) expireLeases() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		t.nextRetry = time.Now().Add(-time.Second)
	}
}

func (s *memStore) successes(orderID int64) int {
	return len(s.filter(func(p Payment) bool { return p.OrderID == orderID && p.Status == StatusSuccess }))
}

type fakeOrders struct {
	mu          sync.Mutex
	orders      map[int64]OrderSnapshot
	pushFailing int
	pushErr     error
	pushes      int
	fetches     int
}

func newFakeOrders(snaps ...OrderSnapshot) *fakeOrders {
	f := &fakeOrders{orders: map[int64]OrderSnapshot{}}
	for _, o := range snaps {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) FetchOrder(_ context.Context, id int64) (OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	o, ok := f.orders[id]
	if !ok {
		return OrderSnapshot{}, apperr.New(apperr.CodeOrderNotFound, "order %d not found", id)
	}
	return o, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.pushFailing > 0 {
		f.pushFailing--
		return apperr.New(apperr.CodeUnavailable, "order service down")
	}
	if f.pushErr != nil {
		return f.pushErr
	}
	o, ok := f.orders[id]
	if !ok {
		return apperr.New(apperr.CodeOrderNotFound, "order %d not found", id)
	}
	if o.Status != status && o.Status != "PENDING" {
		return apperr.New(apperr.CodeInvalidTransition, "order %d: %s -> %s", id, o.Status, status)
	}
	o.Status = status
	f.orders[id] = o
	return nil
}

func (f *fakeOrders) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func (f *fakeOrders) status(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

type stubGateway struct {
	approve bool
	err     error
	calls   int
}

func (g *stubGateway) Charge(context.Context, Charge) (bool, error) {
	g.calls++
	return g.approve, g.err
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

func pendingOrder(id, userID int64, total string) OrderSnapshot {
	return OrderSnapshot{ID: id, UserID: userID, Status: "PENDING", TotalAmount: decimal.RequireFromString(total)}
}

func payFor(orderID, userID int64, amount string) ProcessPaymentInput {
	return ProcessPaymentInput{
		OrderID:        orderID,
		UserID:         userID,
		Amount:         decimal.RequireFromString(amount),
		PaymentMethod:  "CREDIT_CARD",
		CardNumber:     "4111111111111111",
		CardExpiryDate: "12/29",
		CVV:            "123",
	}
}
