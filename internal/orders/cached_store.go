package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedStore is a read-through Redis cache in front of a Store. Only single
// order reads are cached. Writes overwrite the entry with the committed order;
// read misses only fill an empty slot, so a slow reader cannot put back a
// status that a transition has already replaced.
type CachedStore struct {
	next Store
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedStore(next Store, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = redisx.TTLOrderCache
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (s *CachedStore) Create(ctx context.Context, o *Order) error {
	if err := s.next.Create(ctx, o); err != nil {
		return err
	}
	s.put(ctx, *o)
	return nil
}

func (s *CachedStore) GetByID(ctx context.Context, id int64) (Order, error) {
	if b, err := s.rdb.Get(ctx, redisx.OrderKey(id)).Bytes(); err == nil {
		var o Order
		if err := json.Unmarshal(b, &o); err == nil {
			return o, nil
		}
	} else if err != redis.Nil {
		s.log.Warn("order cache read failed", zap.Int64("order_id", id), zap.Error(err))
	}

	o, err := s.next.GetByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	s.fill(ctx, o)
	return o, nil
}

func (s *CachedStore) GetByIdempotencyKey(ctx context.Context, key string) (Order, error) {
	return s.next.GetByIdempotencyKey(ctx, key)
}

func (s *CachedStore) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	return s.next.ListByUser(ctx, userID)
}

func (s *CachedStore) TransitionStatus(ctx context.Context, id int64, to Status) (Order, Status, error) {
	o, from, err := s.next.TransitionStatus(ctx, id, to)
	if err != nil {
		return o, from, err
	}
	if from != to && !s.put(ctx, o) {
		// a stale entry must not outlive the transition
		if err := s.rdb.Del(ctx, redisx.OrderKey(id)).Err(); err != nil {
			s.log.Warn("order cache evict failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}
	return o, from, nil
}

func (s *CachedStore) put(ctx context.Context, o Order) bool {
	b, err := json.Marshal(o)
	if err != nil {
		return false
	}
	if err := s.rdb.Set(ctx, redisx.OrderKey(o.ID), b, s.ttl).Err(); err != nil {
		s.log.Warn("order cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
		return false
	}
	return true
}

func (s *CachedStore) fill(ctx context.Context, o Order) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.rdb.SetNX(ctx, redisx.OrderKey(o.ID), b, s.ttl).Err(); err != nil {
		s.log.Warn("order cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
