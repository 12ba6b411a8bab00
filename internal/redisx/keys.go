package redisx

import (
	"fmt"
	"time"
)

const (
	// order:{order_id} -> order JSON
	keyOrder = "order:%d"

	// dedup:{service}:{event_id}
	keyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)

func OrderKey(id int64) string { return fmt.Sprintf(keyOrder, id) }

func DedupKey(service, id string) string { return fmt.Sprintf(keyDedup, service, id) }
