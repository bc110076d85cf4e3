package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-proxy-cache/pkg/codec"
)

const (
	defaultRedisTTL       = 5 * time.Minute
	defaultUpdateAttempts = 10
	scanBatch             = 100
)

var (
	// ErrEmptyRedisURL is returned by OpenRedis when no URL is given.
	ErrEmptyRedisURL = errors.New("cacheinfra: empty redis url")
	// ErrInvalidRedisURL is returned by OpenRedis for URLs it cannot parse.
	ErrInvalidRedisURL = errors.New("cacheinfra: invalid redis url")
	// ErrUpdateConflict is returned when an Update keeps losing to concurrent
	// writers.
	ErrUpdateConflict = errors.New("cacheinfra: update conflict")
)

// RedisStore keeps values in Redis, encoded with a codec.
//
// Values read back are returned as codec.Encoded since the concrete type is
// only known to the caller.
type RedisStore struct {
	client     redis.UniversalClient
	codec      codec.Codec
	prefix     string
	defaultTTL time.Duration
	attempts   int
	owned      bool
	logger     log.Interface
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix namespaces every key as "prefix:key".
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisCodec sets the value codec. Default: msgpack.
func WithRedisCodec(c codec.Codec) RedisOption {
	return func(s *RedisStore) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithRedisDefaultTTL sets the TTL used when a write passes ttl <= 0.
func WithRedisDefaultTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithRedisUpdateAttempts bounds the optimistic retries made by Update.
func WithRedisUpdateAttempts(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithRedisOwnedClient makes Close also close the client.
func WithRedisOwnedClient() RedisOption {
	return func(s *RedisStore) {
		s.owned = true
	}
}

// WithRedisLogger sets the logger used by the store.
func WithRedisLogger(logger log.Interface) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore wraps an existing client. The client lifecycle stays with
// the caller unless WithRedisOwnedClient is set.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		codec:      codec.Msgpack,
		defaultTTL: defaultRedisTTL,
		attempts:   defaultUpdateAttempts,
		logger:     log.Log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RedisConnOption tunes the connection opened by OpenRedis.
type RedisConnOption func(*redis.Options)

// WithPoolSize sets the maximum number of pooled connections.
func WithPoolSize(n int) RedisConnOption {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

// WithDialTimeout sets the timeout for new connections.
func WithDialTimeout(d time.Duration) RedisConnOption {
	return func(o *redis.Options) {
		if d > 0 {
			o.DialTimeout = d
		}
	}
}

// OpenRedis parses a redis:// or rediss:// URL, connects and pings.
func OpenRedis(ctx context.Context, url string, opts ...RedisConnOption) (*redis.Client, error) {
	if url == "" {
		return nil, ErrEmptyRedisURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrInvalidRedisURL
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrInvalidRedisURL, err)
	}
	for _, opt := range opts {
		opt(redisOpts)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cacheinfra: ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) ttl(ttl time.Duration) time.Duration {
	return resolveTTL(ttl, s.defaultTTL)
}

func (s *RedisStore) encode(value any) ([]byte, error) {
	return s.codec.Marshal(value)
}

func (s *RedisStore) wrap(data []byte) codec.Encoded {
	return codec.Encoded{Data: data, Codec: s.codec}
}

// Get returns the encoded value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return s.wrap(data), true, nil
}

// Set encodes value and stores it under key.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := s.encode(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, s.ttl(ttl)).Err()
}

// Add stores value only when key is absent, using SET NX.
func (s *RedisStore) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := s.encode(value)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, s.key(key), data, s.ttl(ttl)).Result()
}

// Update reads key under WATCH, applies fn and writes the result in a
// transaction. A concurrent write to key restarts the cycle.
func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(current any, found bool) (any, error)) error {
	full := s.key(key)

	txf := func(tx *redis.Tx) error {
		var current any
		found := true

		data, err := tx.Get(ctx, full).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			found = false
		case err != nil:
			return err
		default:
			current = s.wrap(data)
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}
		encoded, err := s.encode(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, encoded, s.ttl(ttl))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		err := s.client.Watch(ctx, txf, full)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.WithField("key", key).WithField("attempt", attempt+1).Debug("redis update retry")
	}
	return ErrUpdateConflict
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// GetMany fetches keys with a single MGET. Absent keys are omitted.
func (s *RedisStore) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.key(key)
	}

	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		switch raw := v.(type) {
		case string:
			out[keys[i]] = s.wrap([]byte(raw))
		case []byte:
			out[keys[i]] = s.wrap(raw)
		}
	}
	return out, nil
}

// SetMany writes every value in one pipeline.
func (s *RedisStore) SetMany(ctx context.Context, values map[string]any, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	encoded := make(map[string][]byte, len(values))
	for key, value := range values {
		data, err := s.encode(value)
		if err != nil {
			return err
		}
		encoded[s.key(key)] = data
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, data := range encoded {
			pipe.Set(ctx, key, data, s.ttl(ttl))
		}
		return nil
	})
	return err
}

// DeleteMany removes every key with one DEL.
func (s *RedisStore) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.key(key)
	}
	return s.client.Del(ctx, full...).Err()
}

// Clear removes every entry. Without a prefix the whole database is
// flushed; with one only "prefix:*" keys are scanned and deleted.
func (s *RedisStore) Clear(ctx context.Context) error {
	if s.prefix == "" {
		return s.client.FlushDB(ctx).Err()
	}

	pattern := s.prefix + ":*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the client when the store owns it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
