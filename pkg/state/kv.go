// Package state provides persistent key-value storage with file, Redis and in-memory backends.
package state

import (
	"context"
)

// KV is the interface for key-value storage backends.
// Values are JSON-compatible; backends may hand back decoded JSON
// (map[string]interface{}, float64, ...) rather than the type that was stored.
type KV interface {
	// Get retrieves a value from the store.
	Get(ctx context.Context, key string) (interface{}, bool, error)

	// Set stores a value.
	Set(ctx context.Context, key string, value interface{}) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns the keys starting with prefix ("" for all keys).
	Keys(ctx context.Context, prefix string) ([]string, error)

	// GetAll returns a copy of every key/value pair under prefix.
	GetAll(ctx context.Context, prefix string) (map[string]interface{}, error)

	// UpdateFunc atomically replaces a value with updateFn(current).
	// current is nil when the key does not exist. Returning nil deletes the key.
	UpdateFunc(ctx context.Context, key string, updateFn func(current interface{}) (interface{}, error)) error

	// Close flushes and releases the backend.
	Close() error
}

// BackendType represents the storage backend type.
type BackendType string

const (
	BackendFile   BackendType = "file"
	BackendRedis  BackendType = "redis"
	BackendMemory BackendType = "memory"
)

// Config configures the state store.
type Config struct {
	Backend BackendType

	// File backend
	FilePath      string
	AutoSave      bool
	SaveIntervalS int

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}
