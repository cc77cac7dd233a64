package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"guildkeeper/pkg/logger"
)

// RedisStore is a Redis-backed key-value store. Values are stored as JSON.
type RedisStore struct {
	log    *logger.Logger
	client redis.UniversalClient
	prefix string
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // default "guildkeeper:"
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(log *logger.Logger, cfg *RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	log.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("prefix", cfg.Prefix))

	return NewRedisStoreWithClient(log, client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(log *logger.Logger, client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "guildkeeper:"
	}
	return &RedisStore{log: log, client: client, prefix: prefix}
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) unprefixKey(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

func decodeValue(raw string) interface{} {
	var result interface{}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return raw
	}
	return result
}

// Get retrieves a value from the store.
func (s *RedisStore) Get(ctx context.Context, key string) (interface{}, bool, error) {
	val, err := s.client.Get(ctx, s.prefixKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return decodeValue(val), true, nil
}

// Set stores a value.
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling value: %w", err)
	}
	if err := s.client.Set(ctx, s.prefixKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys returns the keys under prefix using SCAN.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		result []string
	)
	pattern := s.prefixKey(prefix) + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			result = append(result, s.unprefixKey(key))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return result, nil
}

// GetAll returns every key/value pair under prefix.
func (s *RedisStore) GetAll(ctx context.Context, prefix string) (map[string]interface{}, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.prefixKey(key)
	}
	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		result[keys[i]] = decodeValue(raw)
	}
	return result, nil
}

// UpdateFunc runs updateFn inside a WATCH/MULTI transaction.
func (s *RedisStore) UpdateFunc(ctx context.Context, key string, updateFn func(current interface{}) (interface{}, error)) error {
	prefixedKey := s.prefixKey(key)

	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, prefixedKey).Result()
		var current interface{}
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current = decodeValue(val)
		}

		next, err := updateFn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, prefixedKey)
				return nil
			}
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("marshaling value: %w", err)
			}
			pipe.Set(ctx, prefixedKey, data, 0)
			return nil
		})
		return err
	}

	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, prefixedKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("redis transaction: %s changed concurrently %d times", key, maxRetries)
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
