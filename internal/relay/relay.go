// Package relay persists the pending order ID for a checkout attempt outside
// any in-memory state. Redirect-based payment paths leave the service's
// request context entirely; the relay is what survives and lets the success
// path re-associate the order without re-deriving it.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("no pending order for token")

type Store interface {
	Put(ctx context.Context, token, orderID string) error
	Get(ctx context.Context, token string) (string, error)
	Drop(ctx context.Context, token string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    30 * time.Minute,
	}
}

// Put is written exactly once per checkout attempt, right after order
// creation resolves and before any redirect.
func (s *RedisStore) Put(ctx context.Context, token, orderID string) error {
	if err := s.client.Set(ctx, relayKey(token), orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (string, error) {
	orderID, err := s.client.Get(ctx, relayKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return orderID, nil
}

func (s *RedisStore) Drop(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, relayKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func relayKey(token string) string {
	return fmt.Sprintf("checkout:pending-order:%s", token)
}
