package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader reads an order from the source of truth on a cache miss.
type Loader func(ctx context.Context, id string) (*orders.Order, error)

// OrderCache is a read-through cache of order aggregates. Concurrent misses
// for the same order share one load.
type OrderCache struct {
	rdb *redis.Client
	log *zap.Logger
	sfg singleflight.Group
}

func NewOrderCache(rdb *redis.Client, log *zap.Logger) *OrderCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderCache{rdb: rdb, log: log}
}

func (c *OrderCache) Get(ctx context.Context, id string, load Loader) (*orders.Order, error) {
	key := fmt.Sprintf(KeyOrder, id)
	v, err, _ := c.sfg.Do(key, func() (any, error) {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var o orders.Order
			if err := json.Unmarshal(b, &o); err == nil {
				return &o, nil
			}
			c.log.Warn("order cache decode", zap.String("order_id", id), zap.Error(err))
		} else if !errors.Is(err, redis.Nil) {
			c.log.Warn("order cache get", zap.String("order_id", id), zap.Error(err))
		}

		o, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(o); err == nil {
			if err := c.rdb.Set(ctx, key, b, TTLOrderCache).Err(); err != nil {
				c.log.Warn("order cache set", zap.String("order_id", id), zap.Error(err))
			}
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*orders.Order), nil
}

// Invalidate drops the cached copy after the order changed.
func (c *OrderCache) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err(); err != nil {
		c.log.Warn("order cache invalidate", zap.String("order_id", id), zap.Error(err))
	}
}
