package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper remembers keys it has already seen.
type Deduper struct {
	RDB     redis.Cmdable
	Service string
}

// FirstSeen claims id for this service and reports whether this call was the
// first to do so.
func (d Deduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, DedupKey(d.Service, id), 1, TTLDedup).Result()
}

// Forget drops a claim so the id can be processed again.
func (d Deduper) Forget(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, DedupKey(d.Service, id)).Err()
}
