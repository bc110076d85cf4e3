package proxy

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-proxy-cache/cache"
	"github.com/goliatone/go-proxy-cache/internal/cacheinfra"
	"github.com/goliatone/go-proxy-cache/pkg/codec"
)

var errNoSuchUser = errors.New("no such user")

// userService is the target used across the proxy tests. It counts how
// often each method really runs.
type userService struct {
	mu    sync.Mutex
	users []string
	calls map[string]int
}

func newUserService(names ...string) *userService {
	if len(names) == 0 {
		names = []string{"Alice", "Bob", "Carol"}
	}
	return &userService{users: slices.Clone(names), calls: map[string]int{}}
}

func (s *userService) hit(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *userService) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *userService) GetUsers() []string {
	s.hit("GetUsers")
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users)
}

func (s *userService) GetUser(name string) (string, error) {
	s.hit("GetUser")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.users, name) {
		return "", errNoSuchUser
	}
	return name, nil
}

func (s *userService) GetSomeUsers(kw Kwargs) []string {
	s.hit("GetSomeUsers")
	out := make([]string, 0, len(kw))
	for name := range kw {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *userService) CountUsers(ctx context.Context) (int, error) {
	s.hit("CountUsers")
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *userService) HasUser(name string) bool {
	s.hit("HasUser")
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.users, name)
}

func (s *userService) FindUsers(prefix string, limit int, exclude ...string) []string {
	s.hit("FindUsers")
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, u := range s.users {
		if len(out) == limit {
			break
		}
		if len(u) >= len(prefix) && u[:len(prefix)] == prefix && !slices.Contains(exclude, u) {
			out = append(out, u)
		}
	}
	return out
}

func (s *userService) AddUser(ctx context.Context, name string) error {
	s.hit("AddUser")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, name)
	return nil
}

func (s *userService) DeleteUser(name string) error {
	s.hit("DeleteUser")
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.users, name)
	if i < 0 {
		return errNoSuchUser
	}
	s.users = slices.Delete(s.users, i, i+1)
	return nil
}

func (s *userService) Unsupported() (int, int) { return 0, 0 }

// fakeClock drives store expiry in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemoryStore(t *testing.T, opts ...cacheinfra.MemoryOption) *cacheinfra.MemoryStore {
	t.Helper()
	store := cacheinfra.NewMemoryStore(append([]cacheinfra.MemoryOption{cacheinfra.WithCleanupInterval(0)}, opts...)...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// plainStore hides the Updater implementation of the wrapped store.
type plainStore struct {
	cache.Store
}

// encodingStore keeps values as msgpack bytes the way the Redis store does.
type encodingStore struct {
	cache.Store
}

func (s encodingStore) Get(ctx context.Context, key string) (any, bool, error) {
	v, found, err := s.Store.Get(ctx, key)
	if err != nil || !found {
		return v, found, err
	}
	return codec.Encoded{Data: v.([]byte), Codec: codec.Msgpack}, true, nil
}

func (s encodingStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := codec.Msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, key, data, ttl)
}

func usersProxy(t *testing.T, svc *userService, store cache.Store, opts ...Option) *Proxy {
	t.Helper()
	p, err := Bind(svc, store,
		[]string{"get_users", "get_user", "get_some_users", "count_users", "has_user", "find_users"},
		map[string][]string{
			"delete_user": {"get_user", "count_users", "has_user"},
			"add_user":    {"get_users", "count_users", "find_users"},
		},
		opts...,
	)
	require.NoError(t, err)
	return p
}

func newMemoryStoreWithClock(t *testing.T, clock *fakeClock) *cacheinfra.MemoryStore {
	t.Helper()
	return newMemoryStore(t, cacheinfra.WithClock(clock.Now))
}
