package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage scopes slots to one shopper session. Every save refreshes the TTL.
type RedisStorage struct {
	client  *redis.Client
	session string
	ttl     time.Duration
}

func NewRedisStorage(client *redis.Client, session string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, session: session, ttl: ttl}
}

func (r *RedisStorage) Load(ctx context.Context, slot string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Save(ctx context.Context, slot string, value []byte) error {
	if err := r.client.Set(ctx, r.key(slot), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Clear(ctx context.Context, slot string) error {
	if err := r.client.Del(ctx, r.key(slot)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) key(slot string) string {
	return fmt.Sprintf("storefront:%s:%s", r.session, slot)
}
