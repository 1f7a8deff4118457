package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bookhabit/internal/util"
)

const sessionOpTimeout = 3 * time.Second

// RedisSessionStore keeps opaque session tokens in Redis with a TTL.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore connects to Redis. prefix defaults to
// "bookhabit:session:"; ttl must be positive.
func NewRedisSessionStore(addr, password, prefix string, ttl time.Duration) (*RedisSessionStore, error) {
	if prefix == "" {
		prefix = "bookhabit:session:"
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisSessionStore) NewSession(userID string) (string, error) {
	token := util.NewID()
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *RedisSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()
	userID, err := s.client.Get(ctx, s.prefix+token).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load session: %w", err)
	}
	// Sliding expiry: each authenticated request refreshes the TTL.
	_ = s.client.Expire(ctx, s.prefix+token, s.ttl).Err()
	return userID, true, nil
}

func (s *RedisSessionStore) DeleteSession(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
