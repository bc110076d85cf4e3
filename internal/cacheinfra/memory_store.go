package cacheinfra

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	defaultMemoryTTL       = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// MemoryStore is a concurrent in-process store with per-entry expiry.
//
// Expired entries are dropped lazily on read and periodically by a janitor
// goroutine when a cleanup interval is configured. Add and Update run
// atomically per key.
type MemoryStore struct {
	entries    *xsync.MapOf[string, entry]
	defaultTTL time.Duration
	interval   time.Duration
	now        Clock
	logger     log.Interface

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
	closed    bool
	mu        sync.RWMutex
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryDefaultTTL sets the TTL used when a write passes ttl <= 0.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithCleanupInterval sets how often the janitor sweeps expired entries.
// Zero disables the janitor.
func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval >= 0 {
			s.interval = interval
		}
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now Clock) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMemoryLogger sets the logger used by the store.
func WithMemoryLogger(logger log.Interface) MemoryOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryStore returns a ready MemoryStore. Call Close to stop the janitor.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    xsync.NewMapOf[string, entry](),
		defaultTTL: defaultMemoryTTL,
		interval:   defaultCleanupInterval,
		now:        time.Now,
		logger:     log.Log,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval > 0 {
		s.wg.Add(1)
		go s.janitor()
	}

	return s
}

func (s *MemoryStore) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.logger.WithField("removed", n).Debug("memory store sweep")
			}
		case <-s.done:
			return
		}
	}
}

// sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) sweep() int {
	now := s.now()
	removed := 0
	s.entries.Range(func(key string, _ entry) bool {
		s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
			if loaded && old.expired(now) {
				removed++
				return old, true
			}
			return old, !loaded
		})
		return true
	})
	return removed
}

func (s *MemoryStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) newEntry(value any, ttl time.Duration) entry {
	return entry{
		value:     value,
		expiresAt: s.now().Add(resolveTTL(ttl, s.defaultTTL)),
	}
}

// Get returns the live value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	e, ok := s.entries.Load(key)
	if !ok {
		return nil, false, nil
	}

	now := s.now()
	if !e.expired(now) {
		return e.value, true, nil
	}

	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if loaded && old.expired(now) {
			return old, true
		}
		return old, !loaded
	})
	return nil, false, nil
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.entries.Store(key, s.newEntry(value, ttl))
	return nil
}

// Add stores value only when key holds no live entry.
func (s *MemoryStore) Add(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	now := s.now()
	stored := false
	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if loaded && !old.expired(now) {
			return old, false
		}
		stored = true
		return s.newEntry(value, ttl), false
	})
	return stored, nil
}

// Update applies fn to the current value of key and stores its result. When
// fn fails the entry is left untouched and the error is returned.
func (s *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn func(current any, found bool) (any, error)) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	now := s.now()
	var fnErr error
	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		found := loaded && !old.expired(now)
		var current any
		if found {
			current = old.value
		}

		next, err := fn(current, found)
		if err != nil {
			fnErr = err
			return old, !loaded
		}
		return s.newEntry(next, ttl), false
	})
	return fnErr
}

// Delete removes key. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// GetMany returns the live values for keys. Absent keys are omitted.
func (s *MemoryStore) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, found, _ := s.Get(ctx, key); found {
			out[key] = v
		}
	}
	return out, nil
}

// SetMany stores every value with the same TTL.
func (s *MemoryStore) SetMany(_ context.Context, values map[string]any, ttl time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for key, value := range values {
		s.entries.Store(key, s.newEntry(value, ttl))
	}
	return nil
}

// DeleteMany removes every key.
func (s *MemoryStore) DeleteMany(_ context.Context, keys []string) error {
	for _, key := range keys {
		s.entries.Delete(key)
	}
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.entries.Clear()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (s *MemoryStore) Len() int {
	return s.entries.Size()
}

// Close stops the janitor. Later writes fail with ErrClosed. Close is safe to
// call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()
	})
	return nil
}
