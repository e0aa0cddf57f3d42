package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotent create: idem:order:create:{user_id}:{Idempotency-Key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Order read cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Dedup of relayed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Pub/sub channel per notification target: pos:events:{target}
	ChannelEvents = "pos:events:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = 30 * time.Second
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// EventsChannel is the channel terminals of target subscribe to. An empty
// target is a broadcast.
func EventsChannel(target string) string {
	if target == "" {
		target = "broadcast"
	}
	return fmt.Sprintf(ChannelEvents, target)
}
