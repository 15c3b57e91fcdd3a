package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisWindow_ScenarioThreePerMinute(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newFakeClock()
	w := NewRedisWindow(rdb, 3, WithRedisClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := w.Check(ctx, "1.1.1.1")
		require.NoError(t, err)
		require.True(t, dec.Allowed, "request %d", i+1)
		require.Equal(t, 2-i, dec.Remaining)
		clock.Advance(time.Second)
	}

	dec, err := w.Check(ctx, "1.1.1.1")
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	// o mais antigo (t=0) sai da janela em t=60s; agora é t=3s
	require.Equal(t, 57*time.Second, dec.RetryAfter)

	clock.Advance(58 * time.Second)
	dec, err = w.Check(ctx, "1.1.1.1")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
}

func TestRedisWindow_KeysAreIndependentAndPrefixed(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	w := NewRedisWindow(rdb, 1, WithRedisClock(clock.Now), WithRedisPrefix("rl:"))
	ctx := context.Background()

	dec, err := w.Check(ctx, "A")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = w.Check(ctx, "A")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	dec, err = w.Check(ctx, "B")
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	require.True(t, mr.Exists("rl:A"))
	require.True(t, mr.Exists("rl:B"))

	members, err := mr.ZMembers("rl:A")
	require.NoError(t, err)
	require.Len(t, members, 1, "rejected request must not be stored")
}

func TestRedisWindow_ErrorWhenRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	w := NewRedisWindow(rdb, 1)

	_, err := w.Check(context.Background(), "k")
	require.Error(t, err)
}

func TestRedisWindow_RejectedCallsDoNotCountOrRefreshTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	w := NewRedisWindow(rdb, 2, WithRedisClock(clock.Now), WithRedisPrefix("rl"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dec, err := w.Check(ctx, "A")
		require.NoError(t, err)
		require.True(t, dec.Allowed)
		clock.Advance(time.Second)
	}
	require.Equal(t, time.Minute, mr.TTL("rl:A"))

	mr.FastForward(10 * time.Second)
	clock.Advance(9 * time.Second)

	// t=11s: várias negações seguidas
	for i := 0; i < 5; i++ {
		dec, err := w.Check(ctx, "A")
		require.NoError(t, err)
		require.False(t, dec.Allowed, "reject %d", i+1)
		clock.Advance(time.Second)
	}
	require.Equal(t, 50*time.Second, mr.TTL("rl:A"), "rejected request must not refresh TTL")
	members, err := mr.ZMembers("rl:A")
	require.NoError(t, err)
	require.Len(t, members, 2)

	// t=62s: os dois admitidos (0s e 1s) saíram da janela; as negações não contam
	clock.Advance(46 * time.Second)
	dec, err := w.Check(ctx, "A")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	require.Equal(t, 1, dec.Remaining)

	dec, err = w.Check(ctx, "A")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	require.Equal(t, 0, dec.Remaining)
}
