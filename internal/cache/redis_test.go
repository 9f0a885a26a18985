package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starswipe/internal/model"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisFromClient(rdb, time.Second)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "rate:swipe:u1", SwipeRateKey("u1"))
	assert.Equal(t, "rate:sync:r1", SyncRateKey("r1"))
	assert.Equal(t, "feed:cache:u1:start:10", FeedKey("u1", "", 10))
	assert.Equal(t, "feed:cache:u1:r9:20", FeedKey("u1", "r9", 20))
	assert.Equal(t, "job:lock:leaderboard", LeaseKey("leaderboard"))
	assert.Equal(t, "job:cursor:reconcile", CursorKey("reconcile"))
}

func TestIncrWindow(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrWindow(ctx, "rate:swipe:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, time.Minute, mr.TTL("rate:swipe:u1"))

	// The expiry is only set when the window opens.
	mr.FastForward(30 * time.Second)
	_, err := c.IncrWindow(ctx, "rate:swipe:u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("rate:swipe:u1"))

	mr.FastForward(31 * time.Second)
	n, err := c.IncrWindow(ctx, "rate:swipe:u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new window starts after expiry")
}

func TestGetSet(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(b))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeletePrefix(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	for i := range 250 {
		mr.Set(FeedKey("u", fmt.Sprintf("r%d", i), 10), "x")
	}
	mr.Set("rate:swipe:u", "1")

	require.NoError(t, c.DeletePrefix(ctx, FeedPrefix))
	assert.Equal(t, []string{"rate:swipe:u"}, mr.Keys())
}

func TestSortedSet(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.ZAddBatch(ctx, LeaderboardKey, []model.UserScore{
		{UserID: "a", Score: 1.5},
		{UserID: "b", Score: 3.0},
		{UserID: "c", Score: 2.0},
	}))
	require.NoError(t, c.ZAdd(ctx, LeaderboardKey, "a", 4.0))

	top, err := c.ZRevRange(ctx, LeaderboardKey, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.UserScore{{UserID: "a", Score: 4.0}, {UserID: "b", Score: 3.0}}, top)

	rank, ok, err := c.ZRevRank(ctx, LeaderboardKey, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), rank)

	require.NoError(t, c.ZRem(ctx, LeaderboardKey, "c"))
	_, ok, err = c.ZRevRank(ctx, LeaderboardKey, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ZAddBatch(ctx, LeaderboardKey, nil))
}

func TestLease(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()
	key := LeaseKey("sweep")

	token, ok, err := c.AcquireLease(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLease(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	// A stale token never releases someone else's lease.
	require.NoError(t, c.ReleaseLease(ctx, key, "not-the-owner"))
	assert.True(t, mr.Exists(key))

	require.NoError(t, c.ReleaseLease(ctx, key, token))
	assert.False(t, mr.Exists(key))

	_, ok, err = c.AcquireLease(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_Expires(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()
	key := LeaseKey("sweep")

	_, ok, err := c.AcquireLease(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.AcquireLease(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnavailable(t *testing.T) {
	c, mr := newTestRedis(t)
	mr.Close()
	ctx := context.Background()

	_, err := c.IncrWindow(ctx, "k", time.Minute)
	assert.Error(t, err)
	_, _, err = c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Ping(ctx))
}
