// Package cache is the fast, best-effort side of the system: rate counters,
// the feed cache, the leaderboard sorted set, job leases and job cursors.
//
// Nothing stored here is a source of truth. Callers treat every error as
// "cache unavailable" and fall back to the store or skip the optimization.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/starswipe/internal/model"
)

// Key namespaces.
const (
	LeaderboardKey = "leaderboard"
	FeedPrefix     = "feed:cache:"
)

// SwipeRateKey is the per-user swipe velocity counter.
func SwipeRateKey(userID string) string { return "rate:swipe:" + userID }

// SyncRateKey is the per-repository manual sync counter.
func SyncRateKey(repositoryID string) string { return "rate:sync:" + repositoryID }

// FeedKey addresses one cached feed page. An empty cursor is the first page.
func FeedKey(userID, cursor string, limit int) string {
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s%s:%s:%d", FeedPrefix, userID, cursor, limit)
}

// LeaseKey is the mutual-exclusion lease for a named job.
func LeaseKey(job string) string { return "job:lock:" + job }

// CursorKey stores a resumable job position.
func CursorKey(job string) string { return "job:cursor:" + job }

// Cache is the port the services depend on.
type Cache interface {
	// IncrWindow atomically increments key and, when the increment opened a
	// new window, sets the window as its expiry. It returns the new count.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value. A zero ttl keeps the key until overwritten.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	ZAdd(ctx context.Context, key, member string, score float64) error
	ZAddBatch(ctx context.Context, key string, scores []model.UserScore) error
	// ZRevRange returns members by descending score, ranks start..stop inclusive.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]model.UserScore, error)
	// ZRevRank returns the zero-based descending rank, or ok=false if absent.
	ZRevRank(ctx context.Context, key, member string) (rank int64, ok bool, err error)
	ZRem(ctx context.Context, key, member string) error

	// AcquireLease takes key for ttl if nobody holds it. The returned token
	// must be presented to ReleaseLease.
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// ReleaseLease drops the lease only if token still owns it.
	ReleaseLease(ctx context.Context, key, token string) error

	Ping(ctx context.Context) error
}
