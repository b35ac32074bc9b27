package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions as JSON values with a native TTL, so multiple
// server instances share logins.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "versa:session:".
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultConfig().RedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) key(tokenHash string) string { return s.prefix + tokenHash }

func (s *RedisStore) Create(ctx context.Context, row Row) error {
	ttl := row.ExpiresAt.Sub(row.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("session: redis create: non-positive ttl")
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("session: redis marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(row.TokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, tokenHash string) (Row, error) {
	data, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Row{}, ErrSessionNotFound
		}
		return Row{}, fmt.Errorf("session: redis get: %w", err)
	}

	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return Row{}, fmt.Errorf("session: redis decode: %w", err)
	}
	return row, nil
}

func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires session keys itself.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, ctx.Err()
}
