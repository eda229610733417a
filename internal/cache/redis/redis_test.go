package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketchart/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb), mr
}

func TestMarketCache_SetGetInvalidate(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewMarketCache(c, time.Minute)
	ctx := context.Background()

	_, err := cache.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	closeAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := domain.Market{
		ID:        "m1",
		Question:  "Will it ship?",
		Status:    domain.MarketStatusActive,
		CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		CloseTime: &closeAt,
	}
	require.NoError(t, cache.Set(ctx, m))
	assert.Equal(t, time.Minute, mr.TTL("market:m1"))

	got, err := cache.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m.Question, got.Question)
	require.NotNil(t, got.CloseTime)
	assert.True(t, closeAt.Equal(*got.CloseTime))

	require.NoError(t, cache.Invalidate(ctx, "m1"))
	_, err = cache.Get(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketCache_Expires(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewMarketCache(c, 0)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.Market{ID: "m2"}))
	mr.FastForward(defaultMarketTTL + time.Second)

	_, err := cache.Get(ctx, "m2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalBus_PublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelMarketBounds)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelMarketBounds, []byte(`{"market_id":"m1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"market_id":"m1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}

	cancel()
	for range ch {
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	base := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := rl.Allow(ctx, "api:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "api:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	rl.now = func() time.Time { return base.Add(2 * time.Minute) }
	ok, err = rl.Allow(ctx, "api:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockManager_Acquire(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "pipeline:archive", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:pipeline:archive"))

	_, err = lm.Acquire(ctx, "pipeline:archive", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:pipeline:archive"))

	unlock2, err := lm.Acquire(ctx, "pipeline:archive", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_StaleUnlockKeepsNewHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	defer fresh()

	stale()
	assert.True(t, mr.Exists("lock:k"))
}
