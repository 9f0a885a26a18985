package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/starswipe/internal/model"
)

// DefaultTimeout bounds every Redis round trip.
const DefaultTimeout = 250 * time.Millisecond

var _ Cache = (*Redis)(nil)

// incrWindowScript increments and sets the expiry in one step so a crash
// between the two can never leave a counter without a TTL.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis implements Cache on go-redis.
type Redis struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewRedis connects using a redis:// URL.
func NewRedis(redisURL string, timeout time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parsing redis URL: %w", err)
	}
	return NewRedisFromClient(redis.NewClient(opts), timeout), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Redis{rdb: rdb, timeout: timeout}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Redis) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	n, err := incrWindowScript.Run(ctx, r.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("cache: incr %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := r.op(ctx)
	defer cancel()

	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// DeletePrefix walks the keyspace with SCAN rather than KEYS so a large
// keyspace never blocks the server. Keys are collected over the full scan
// and deleted afterwards; deleting mid-scan can make the cursor skip keys.
// It gets a longer budget than a single round trip.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, 4*r.timeout)
	defer cancel()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("cache: scanning %s*: %w", prefix, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}

	for len(keys) > 0 {
		n := min(len(keys), 500)
		if err := r.rdb.Unlink(ctx, keys[:n]...).Err(); err != nil {
			return fmt.Errorf("cache: deleting %s*: %w", prefix, err)
		}
		keys = keys[n:]
	}
	return nil
}

func (r *Redis) ZAdd(ctx context.Context, key, member string, score float64) error {
	ctx, cancel := r.op(ctx)
	defer cancel()

	if err := r.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("cache: zadd %s: %w", key, err)
	}
	return nil
}

// ZAddBatch writes all scores in one pipeline.
func (r *Redis) ZAddBatch(ctx context.Context, key string, scores []model.UserScore) error {
	if len(scores) == 0 {
		return nil
	}
	ctx, cancel := r.op(ctx)
	defer cancel()

	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, s := range scores {
			pipe.ZAdd(ctx, key, redis.Z{Score: s.Score, Member: s.UserID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: pipelined zadd %s: %w", key, err)
	}
	return nil
}

func (r *Redis) ZRevRange(ctx context.Context, key string, start, stop int64) ([]model.UserScore, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	zs, err := r.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: zrevrange %s: %w", key, err)
	}

	out := make([]model.UserScore, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, model.UserScore{UserID: member, Score: z.Score})
	}
	return out, nil
}

func (r *Redis) ZRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	rank, err := r.rdb.ZRevRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: zrevrank %s: %w", key, err)
	}
	return rank, true, nil
}

func (r *Redis) ZRem(ctx context.Context, key, member string) error {
	ctx, cancel := r.op(ctx)
	defer cancel()

	if err := r.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("cache: zrem %s: %w", key, err)
	}
	return nil
}

func (r *Redis) AcquireLease(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("cache: acquiring lease %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *Redis) ReleaseLease(ctx context.Context, key, token string) error {
	ctx, cancel := r.op(ctx)
	defer cancel()

	if err := releaseLeaseScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("cache: releasing lease %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}
