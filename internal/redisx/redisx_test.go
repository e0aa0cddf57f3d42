package redisx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestOrderCache_ReadThrough(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	cache := NewOrderCache(rdb, nil)
	ctx := context.Background()

	var loads int32
	load := func(ctx context.Context, id string) (*orders.Order, error) {
		atomic.AddInt32(&loads, 1)
		return &orders.Order{ID: id, Status: orders.StatusDraft, FinalAmount: decimal.RequireFromString("12.50")}, nil
	}

	o, err := cache.Get(ctx, "o1", load)
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.True(t, mr.Exists(fmt.Sprintf(KeyOrder, "o1")))

	o, err = cache.Get(ctx, "o1", load)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(o.FinalAmount))
	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))

	cache.Invalidate(ctx, "o1")
	assert.False(t, mr.Exists(fmt.Sprintf(KeyOrder, "o1")))
	_, err = cache.Get(ctx, "o1", load)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&loads))
}

func TestOrderCache_LoaderErrorNotCached(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	cache := NewOrderCache(rdb, nil)
	boom := errors.New("boom")

	_, err := cache.Get(context.Background(), "o1", func(context.Context, string) (*orders.Order, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(fmt.Sprintf(KeyOrder, "o1")))
}

func TestOrderCache_CollapsesConcurrentMisses(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	cache := NewOrderCache(rdb, nil)

	var loads int32
	release := make(chan struct{})
	load := func(ctx context.Context, id string) (*orders.Order, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return &orders.Order{ID: id}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), "o1", load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&loads))
}

func TestIdempotency_ClaimCompleteRelease(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	idem := NewIdempotency(rdb)
	ctx := context.Background()

	_, claimed, err := idem.Claim(ctx, "u1", "req-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, claimed, err = idem.Claim(ctx, "u1", "req-1")
	assert.ErrorIs(t, err, ErrInProgress)
	assert.False(t, claimed)

	require.NoError(t, idem.Complete(ctx, "u1", "req-1", "order-9"))
	id, claimed, err := idem.Claim(ctx, "u1", "req-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-9", id)
	assert.Equal(t, TTLIdempotency, mr.TTL(fmt.Sprintf(KeyIdemOrderCreate, "u1", "req-1")))

	_, claimed, err = idem.Claim(ctx, "u1", "req-2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, idem.Release(ctx, "u1", "req-2"))
	_, claimed, err = idem.Claim(ctx, "u1", "req-2")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotency_KeysArePerUser(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	idem := NewIdempotency(rdb)
	ctx := context.Background()

	_, claimed, err := idem.Claim(ctx, "u1", "same")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, idem.Complete(ctx, "u1", "same", "order-1"))

	id, claimed, err := idem.Claim(ctx, "u2", "same")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, id)
}

func TestOnce(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	ctx := context.Background()

	first, err := Once(ctx, rdb, "dedup:x:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = Once(ctx, rdb, "dedup:x:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, first)

	ok, err := Exists(ctx, rdb, "dedup:x:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventsChannel(t *testing.T) {
	assert.Equal(t, "pos:events:admin", EventsChannel("admin"))
	assert.Equal(t, "pos:events:broadcast", EventsChannel(""))
}
