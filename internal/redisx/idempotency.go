package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

// ErrInProgress is returned while another request holds the same key.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// Idempotency remembers which order a create request produced.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

// Claim reserves key for user. Keys are per user, so two callers sending the
// same key never see each other's orders. When the key already completed it
// returns the order id it produced and claimed=false.
func (i *Idempotency) Claim(ctx context.Context, user, key string) (orderID string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, user, key)
	ok, err := i.rdb.SetNX(ctx, k, pending, TTLIdemPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return i.Claim(ctx, user, key)
	}
	if err != nil {
		return "", false, err
	}
	if v == pending {
		return "", false, ErrInProgress
	}
	return v, false, nil
}

func (i *Idempotency) Complete(ctx context.Context, user, key, orderID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, user, key), orderID, TTLIdempotency).Err()
}

// Release frees a claimed key after the create failed.
func (i *Idempotency) Release(ctx context.Context, user, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, user, key)).Err()
}
