package cache

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/goliatone/go-proxy-cache/pkg/codec"
)

// Store is the key/value contract the method proxy relies on.
//
// A missing key is reported through found == false, never as an error, so
// cached zero values stay distinguishable from absent entries. A ttl <= 0
// selects the store default.
type Store interface {
	Get(ctx context.Context, key string) (value any, found bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Add stores value only when key is absent and reports whether it did.
	Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// GetMany omits absent keys from the result.
	GetMany(ctx context.Context, keys []string) (map[string]any, error)
	SetMany(ctx context.Context, values map[string]any, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys []string) error
	Clear(ctx context.Context) error
}

// UpdateFunc computes the next value of a key from its current one.
type UpdateFunc = func(current any, found bool) (any, error)

// Updater is implemented by stores that can apply a read-modify-write to a
// single key atomically. When fn returns an error nothing is written.
type Updater interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}

// GetOrDefault returns the value under key, or def when the key is absent.
func GetOrDefault(ctx context.Context, store Store, key string, def any) (any, error) {
	v, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// As converts a value read from a Store to T. Encoded payloads from byte
// stores are decoded into T; a nil value yields the zero T.
func As[T any](v any) (T, error) {
	var zero T

	switch val := v.(type) {
	case codec.Encoded:
		var out T
		if err := val.Decode(&out); err != nil {
			return zero, fmt.Errorf("%w: %w", ErrInvalidResultType, err)
		}
		return out, nil
	case nil:
		return zero, nil
	case T:
		return val, nil
	}

	return zero, fmt.Errorf("%w: have %T, want %s", ErrInvalidResultType, v, reflect.TypeFor[T]())
}

// Close releases store resources when the store holds any.
func Close(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
