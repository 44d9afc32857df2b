package state

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisSeenStore keeps each namespace as a Redis set. SADD is idempotent,
// so concurrent sessions can append freely.
type RedisSeenStore struct {
	client *redis.Client
	key    string
}

// NewRedisSeenStore connects to Redis and verifies the connection.
func NewRedisSeenStore(cfg RedisConfig, namespace string) (*RedisSeenStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "tgoutreach:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("namespace", namespace).
		Msg("Connected to redis seen-set store")

	return newRedisSeenStoreWithClient(client, cfg.Prefix+namespace), nil
}

func newRedisSeenStoreWithClient(client *redis.Client, key string) *RedisSeenStore {
	return &RedisSeenStore{client: client, key: key}
}

// Contains reports whether id is a member of the namespace set.
func (s *RedisSeenStore) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// AddAll adds ids to the namespace set.
func (s *RedisSeenStore) AddAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		members = append(members, id)
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisSeenStore) Close() error {
	return s.client.Close()
}
