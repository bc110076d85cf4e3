// Package cache defines the store contract used by the method proxy, the
// key serializer that turns calls into cache keys, and the configuration
// that selects a store backend.
//
// # Stores
//
// A Store is a small key/value interface with per-entry TTL. Three backends
// ship with the module and are built by NewStore:
//
//   - memory: a concurrent map with lazy expiry and a janitor goroutine
//   - sturdyc: a sharded in-memory client with capacity based eviction
//   - redis: values encoded with msgpack (or JSON) under an optional prefix
//
// Stores that can run an atomic read-modify-write on one key also implement
// Updater. The method registry uses it when available.
//
// Byte oriented stores return codec.Encoded from Get. Use As to turn any
// stored value into a concrete type:
//
//	v, found, err := store.Get(ctx, "methods_list")
//	keys, err := cache.As[[]string](v)
//
// # Keys
//
// The default KeySerializer renders a call as
//
//	method(positional,...)[name=value,...]
//
// Positional arguments keep call order; keyword arguments are sorted by
// name, so get_some_users(Adam=1, Bob=2) and get_some_users(Bob=2, Adam=1)
// share one key. Strings are quoted. Values are walked by reflection:
// pointers are dereferenced, slices, maps and structs are rendered
// recursively, and types implementing encoding.TextMarshaler (time.Time,
// uuid.UUID) use their text form.
//
// Functions and channels are rendered by address, which is only stable
// within one process. Use a custom KeySerializer when such arguments must
// produce the same key across restarts.
//
// WithMaxKeyLength hashes the argument part of long keys with xxhash. The
// method name stays in front so prefix invalidation keeps working:
//
//	serializer := cache.NewDefaultKeySerializer(cache.WithMaxKeyLength(200))
//
// # Configuration
//
//	cfg := cache.DefaultConfig()
//	cfg.Backend = cache.BackendRedis
//	cfg.Redis.URL = "redis://localhost:6379/0"
//
//	store, err := cache.NewStore(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer cache.Close(store)
//
// Validation errors wrap ErrInvalidConfig.
package cache
