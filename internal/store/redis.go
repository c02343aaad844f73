package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndSwapScript = redis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = expected current value
-- ARGV[2] = replacement value
-- ARGV[3] = ttl_ms (int)
--
-- Returns:
--  1 if swapped
--  0 if the key is absent or holds a different value
local current = redis.call('GET', KEYS[1])
if current ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisStore implements Store on top of go-redis. Each call runs under its
// own timeout; a timeout surfaces as ErrUnavailable.
type RedisStore struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStore{rdb: rdb, timeout: timeout}
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.New("store: key is required")
	}
	if ttl <= 0 {
		return errors.New("store: ttl must be > 0")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return unavailable(s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return v, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return unavailable(s.rdb.Del(ctx, keys...).Err())
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key, prev, next string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("store: ttl must be > 0")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := compareAndSwapScript.Run(ctx, s.rdb, []string{key}, prev, next, ttl.Milliseconds()).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return res == 1, nil
}

func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 || limit > DefaultScanLimit {
		limit = DefaultScanLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	match := escapeGlob(prefix) + "*"
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		for _, k := range keys {
			out = append(out, k)
			if len(out) == limit {
				return out, nil
			}
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
