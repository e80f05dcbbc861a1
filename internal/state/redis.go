package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var releaseLeaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps run state in Redis under a key prefix
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "bwsrank"
	}

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("prefix", keyPrefix).
		Msg("Connected to redis")

	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, key, owner string) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{s.key(key)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
