package cacheinfra

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/viccon/sturdyc"
)

// SturdycStore is a sharded in-memory store backed by a sturdyc client.
//
// sturdyc applies one TTL to every record, so each value is kept in an entry
// carrying its own expiry and checked on read. Capacity based eviction is
// left to sturdyc.
type SturdycStore struct {
	client     *sturdyc.Client[entry]
	defaultTTL time.Duration
	now        Clock
	logger     log.Interface

	// mu serializes writes; sturdyc has no compare-and-swap. Reads of live
	// entries do not take it.
	mu sync.Mutex
}

// SturdycOption configures a SturdycStore.
type SturdycOption func(*SturdycStore)

// WithSturdycClock overrides the clock used for expiry checks.
func WithSturdycClock(now Clock) SturdycOption {
	return func(s *SturdycStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSturdycLogger sets the logger used by the store.
func WithSturdycLogger(logger log.Interface) SturdycOption {
	return func(s *SturdycStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSturdycStore validates cfg and initializes a sturdyc client with it.
func NewSturdycStore(cfg SturdycConfig, opts ...SturdycOption) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	s := &SturdycStore{
		client:     client,
		defaultTTL: resolveTTL(cfg.DefaultTTL, cfg.TTL),
		now:        time.Now,
		logger:     log.Log,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Get returns the value stored under key. Expired entries are removed and
// reported as absent.
func (s *SturdycStore) Get(_ context.Context, key string) (any, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.now()) {
		s.expire(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// expire deletes key if it still holds an expired entry. A write landing
// after Get saw the stale entry is kept.
func (s *SturdycStore) expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.client.Get(key); ok && e.expired(s.now()) {
		s.client.Delete(key)
	}
}

// lookupLocked is Get for callers holding mu.
func (s *SturdycStore) lookupLocked(key string) (any, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		s.client.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
func (s *SturdycStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

func (s *SturdycStore) set(key string, value any, ttl time.Duration) {
	s.client.Set(key, entry{
		value:     value,
		expiresAt: s.now().Add(resolveTTL(ttl, s.defaultTTL)),
	})
}

// Add stores value only when key holds no live entry. It reports whether the
// value was stored.
func (s *SturdycStore) Add(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.lookupLocked(key); found {
		return false, nil
	}
	s.set(key, value, ttl)
	return true, nil
}

// Update applies fn to the current value of key and stores the result.
// Concurrent Update and Add calls on the store are serialized.
func (s *SturdycStore) Update(_ context.Context, key string, ttl time.Duration, fn func(current any, found bool) (any, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.lookupLocked(key)
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	s.set(key, next, ttl)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SturdycStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.Delete(key)
	return nil
}

// GetMany returns the live values for keys. Absent keys are omitted.
func (s *SturdycStore) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, found, _ := s.Get(ctx, key); found {
			out[key] = v
		}
	}
	return out, nil
}

// SetMany stores every value with the same TTL.
func (s *SturdycStore) SetMany(_ context.Context, values map[string]any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range values {
		s.set(key, value, ttl)
	}
	return nil
}

// DeleteMany removes every key.
func (s *SturdycStore) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Clear removes every entry.
func (s *SturdycStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.client.ScanKeys()
	for _, key := range keys {
		s.client.Delete(key)
	}
	s.logger.WithField("count", len(keys)).Debug("sturdyc store cleared")
	return nil
}

// Len returns the number of records held by sturdyc, expired ones included.
func (s *SturdycStore) Len() int {
	return s.client.Size()
}
