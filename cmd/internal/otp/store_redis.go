package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per identifier ({code, issued_at}) with a key TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "versa:otp:".
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultConfig().RedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

// compareAndDeleteScript deletes KEYS[1] only when its code field equals ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
local code = redis.call("HGET", KEYS[1], "code")
if code and code == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

func (s *RedisStore) key(identifier string) string { return s.prefix + identifier }

func (s *RedisStore) Put(ctx context.Context, e Entry, ttl time.Duration) error {
	key := s.key(e.Identifier)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "code", e.Code, "issued_at", strconv.FormatInt(e.IssuedAt.UnixNano(), 10))
	if ttl > 0 {
		// Keep the key a little past TTL so a late verify still sees and deletes it.
		pipe.Expire(ctx, key, ttl+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp: redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (Entry, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("otp: redis get: %w", err)
	}
	code, ok := vals["code"]
	if !ok {
		return Entry{}, false, nil
	}
	ns, err := strconv.ParseInt(vals["issued_at"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("otp: redis decode issued_at: %w", err)
	}
	return Entry{Identifier: identifier, Code: code, IssuedAt: time.Unix(0, ns).UTC()}, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("otp: redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, identifier, code string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(identifier)}, code).Int()
	if err != nil {
		return false, fmt.Errorf("otp: redis compare-and-delete: %w", err)
	}
	return n == 1, nil
}

// DeleteIssuedBefore is a no-op: Redis expires OTP keys itself.
func (s *RedisStore) DeleteIssuedBefore(ctx context.Context, _ time.Time) (int, error) {
	return 0, ctx.Err()
}
