// Package settings stores per-plugin configuration scoped to a guild or to the whole bot.
//
// Keys are laid out as "<owner>/<scope>/<key>" in the underlying state.KV, where
// scope is a guild ID or GlobalScope. Values are normalized to their JSON form on
// write so the file and Redis backends hand back identical shapes.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"guildkeeper/pkg/state"
)

// GlobalScope is the scope used for settings that are not tied to a guild.
const GlobalScope = "global"

// Store is a scoped settings store.
type Store struct {
	kv state.KV
}

// New creates a settings store over kv.
func New(kv state.KV) *Store {
	return &Store{kv: kv}
}

// Key builds the state key for owner/scope/key. An empty scope means GlobalScope.
func Key(owner, scope, key string) string {
	if scope == "" {
		scope = GlobalScope
	}
	return owner + "/" + scope + "/" + key
}

func scopePrefix(owner, scope string) string {
	if scope == "" {
		scope = GlobalScope
	}
	return owner + "/" + scope + "/"
}

func validate(owner, key string) error {
	if owner == "" || strings.Contains(owner, "/") {
		return fmt.Errorf("invalid settings owner %q", owner)
	}
	if key == "" {
		return fmt.Errorf("settings key is required")
	}
	return nil
}

// normalize converts v into its decoded-JSON form.
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding setting: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding setting: %w", err)
	}
	return out, nil
}

// Get returns the raw (decoded JSON) value of a setting.
func (s *Store) Get(ctx context.Context, owner, scope, key string) (interface{}, bool, error) {
	if err := validate(owner, key); err != nil {
		return nil, false, err
	}
	return s.kv.Get(ctx, Key(owner, scope, key))
}

// Set stores a setting.
func (s *Store) Set(ctx context.Context, owner, scope, key string, value interface{}) error {
	if err := validate(owner, key); err != nil {
		return err
	}
	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	if normalized == nil {
		return s.kv.Delete(ctx, Key(owner, scope, key))
	}
	return s.kv.Set(ctx, Key(owner, scope, key), normalized)
}

// Delete removes a setting.
func (s *Store) Delete(ctx context.Context, owner, scope, key string) error {
	if err := validate(owner, key); err != nil {
		return err
	}
	return s.kv.Delete(ctx, Key(owner, scope, key))
}

// GetAll returns every setting of owner in scope, keyed by setting key.
func (s *Store) GetAll(ctx context.Context, owner, scope string) (map[string]interface{}, error) {
	if err := validate(owner, "-"); err != nil {
		return nil, err
	}
	prefix := scopePrefix(owner, scope)
	raw, err := s.kv.GetAll(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[strings.TrimPrefix(k, prefix)] = v
	}
	return out, nil
}

// Update atomically replaces a setting with fn(current). Returning nil deletes it.
func (s *Store) Update(ctx context.Context, owner, scope, key string, fn func(current interface{}) (interface{}, error)) error {
	if err := validate(owner, key); err != nil {
		return err
	}
	return s.kv.UpdateFunc(ctx, Key(owner, scope, key), func(current interface{}) (interface{}, error) {
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		return normalize(next)
	})
}

// Decode converts a raw setting value as returned by Get or GetAll into dst.
func Decode(raw interface{}, dst interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding setting: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding setting: %w", err)
	}
	return nil
}

// Load decodes a setting into dst. It reports false and leaves dst untouched when
// the setting does not exist.
func Load[T any](ctx context.Context, s *Store, owner, scope, key string, dst *T) (bool, error) {
	raw, ok, err := s.Get(ctx, owner, scope, key)
	if err != nil || !ok {
		return false, err
	}
	if err := Decode(raw, dst); err != nil {
		return false, fmt.Errorf("%s: %w", Key(owner, scope, key), err)
	}
	return true, nil
}

// Mutate decodes a setting into a T (zero value when absent), applies fn and
// writes the result back atomically. It returns the stored value.
func Mutate[T any](ctx context.Context, s *Store, owner, scope, key string, fn func(v *T) error) (T, error) {
	var result T
	err := s.Update(ctx, owner, scope, key, func(current interface{}) (interface{}, error) {
		var v T
		if current != nil {
			if err := Decode(current, &v); err != nil {
				return nil, err
			}
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		result = v
		return v, nil
	})
	return result, err
}
