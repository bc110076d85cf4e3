package proxy

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/goliatone/go-proxy-cache/cache"
)

// MatchMode decides whether a registry key belongs to an invalidation prefix.
type MatchMode int

const (
	// MatchPrefix is a plain string prefix test, so "get_user" also matches
	// keys of "get_users".
	MatchPrefix MatchMode = iota
	// MatchMethod requires the prefix to end on a method name boundary.
	MatchMethod
)

func (m MatchMode) String() string {
	if m == MatchMethod {
		return "method"
	}
	return "prefix"
}

func (m MatchMode) matches(key, prefix string) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	// A prefix already reaching into the arguments has crossed the boundary.
	if m != MatchMethod || strings.ContainsAny(prefix, "(#") {
		return true
	}
	if len(key) == len(prefix) {
		return false
	}
	next := key[len(prefix)]
	return next == '(' || next == '#'
}

// Registry is the list of cache keys created by memoized calls. It lives in
// the store itself, as a single entry, so every proxy sharing a store sees
// the same list.
type Registry struct {
	store  cache.Store
	key    string
	ttl    time.Duration
	logger log.Interface

	// mu serializes read-modify-write cycles on stores without Updater.
	mu sync.Mutex
}

// NewRegistry returns a registry stored under key with the given TTL.
func NewRegistry(store cache.Store, key string, ttl time.Duration) *Registry {
	if key == "" {
		key = cache.DefaultRegistryKey
	}
	if ttl <= 0 {
		ttl = cache.DefaultRegistryTTL
	}
	return &Registry{
		store:  store,
		key:    key,
		ttl:    ttl,
		logger: log.Log,
	}
}

// Key returns the store key holding the registry.
func (r *Registry) Key() string { return r.key }

// Keys returns a copy of the registered cache keys.
func (r *Registry) Keys(ctx context.Context) ([]string, error) {
	v, found, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, err
	}
	return r.decode(v, found), nil
}

// decode turns a stored registry value into a fresh slice. Entries that do
// not decode are dropped, and the next write replaces them.
func (r *Registry) decode(v any, found bool) []string {
	if !found {
		return nil
	}
	keys, err := cache.As[[]string](v)
	if err != nil {
		r.logger.WithError(err).WithField("key", r.key).Warn("registry entry unreadable, resetting")
		return nil
	}
	return slices.Clone(keys)
}

// update applies fn to the current key list and writes the result back
// with the registry TTL.
func (r *Registry) update(ctx context.Context, fn func([]string) []string) error {
	if u, ok := r.store.(cache.Updater); ok {
		return u.Update(ctx, r.key, r.ttl, func(current any, found bool) (any, error) {
			return fn(r.decode(current, found)), nil
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.Keys(ctx)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.key, fn(keys), r.ttl)
}

// Register appends key when absent. The entry is written either way so its
// TTL is refreshed.
func (r *Registry) Register(ctx context.Context, key string) error {
	return r.update(ctx, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

// Remove drops the given keys from the registry.
func (r *Registry) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	return r.update(ctx, func(current []string) []string {
		return slices.DeleteFunc(current, func(k string) bool {
			_, ok := drop[k]
			return ok
		})
	})
}

// Match returns the registered keys matching any of prefixes.
func (r *Registry) Match(ctx context.Context, mode MatchMode, prefixes ...string) ([]string, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return matchKeys(keys, mode, prefixes), nil
}

func matchKeys(keys []string, mode MatchMode, prefixes []string) []string {
	var matched []string
	for _, key := range keys {
		for _, prefix := range prefixes {
			if mode.matches(key, prefix) {
				matched = append(matched, key)
				break
			}
		}
	}
	return matched
}

// Purge deletes every cached entry whose key matches a prefix and removes
// those keys from the registry. It returns the purged keys.
func (r *Registry) Purge(ctx context.Context, mode MatchMode, prefixes ...string) ([]string, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}

	matched, err := r.Match(ctx, mode, prefixes...)
	if err != nil || len(matched) == 0 {
		return nil, err
	}

	if err := r.store.DeleteMany(ctx, matched); err != nil {
		return nil, err
	}
	if err := r.Remove(ctx, matched...); err != nil {
		return nil, err
	}

	r.logger.WithFields(log.Fields{
		"count":    len(matched),
		"prefixes": prefixes,
	}).Debug("registry purge")

	return matched, nil
}

// Reset deletes the registry entry. Cached entries are left to expire.
func (r *Registry) Reset(ctx context.Context) error {
	return r.store.Delete(ctx, r.key)
}
