package cache

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-proxy-cache/internal/cacheinfra"
	"github.com/goliatone/go-proxy-cache/pkg/codec"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendSturdyc Backend = "sturdyc"
	BackendRedis   Backend = "redis"
)

const (
	// DefaultRegistryKey is the store key holding the method registry.
	DefaultRegistryKey = "methods_list"
	// DefaultRegistryTTL is how long the registry entry lives.
	DefaultRegistryTTL = time.Hour
	// DefaultTTL is the lifetime of cached method results.
	DefaultTTL = 5 * time.Minute
)

// Config selects and tunes the store behind a proxy.
type Config struct {
	Backend Backend

	// TTL is the default lifetime of cached results.
	TTL time.Duration

	// RegistryKey and RegistryTTL control the method registry entry.
	RegistryKey string
	RegistryTTL time.Duration

	// CleanupInterval is the memory store janitor period. Zero disables it.
	CleanupInterval time.Duration

	Sturdyc SturdycConfig
	Redis   RedisConfig
}

// SturdycConfig mirrors the sharded store settings. Its TTL ceiling is
// derived from Config.TTL and Config.RegistryTTL.
type SturdycConfig struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// RedisConfig holds the Redis store settings.
type RedisConfig struct {
	URL         string
	Prefix      string
	Codec       string
	PoolSize    int
	DialTimeout time.Duration
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	sturdy := cacheinfra.DefaultSturdycConfig()

	return Config{
		Backend:         BackendMemory,
		TTL:             DefaultTTL,
		RegistryKey:     DefaultRegistryKey,
		RegistryTTL:     DefaultRegistryTTL,
		CleanupInterval: time.Minute,
		Sturdyc: SturdycConfig{
			Capacity:           sturdy.Capacity,
			NumShards:          sturdy.NumShards,
			EvictionPercentage: sturdy.EvictionPercentage,
			EvictionInterval:   sturdy.EvictionInterval,
		},
		Redis: RedisConfig{
			Codec:       codec.Msgpack.Name(),
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
	}
}

// Validate checks the configuration. Failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend,
			validation.Required,
			validation.In(BackendMemory, BackendSturdyc, BackendRedis),
		),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RegistryKey, validation.Required),
		validation.Field(&c.RegistryTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.CleanupInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Backend {
	case BackendSturdyc:
		err = c.sturdycConfig().Validate()
	case BackendRedis:
		err = c.Redis.Validate()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the Redis settings.
func (r RedisConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
		validation.Field(&r.Codec, validation.In("", "msgpack", "json")),
		validation.Field(&r.PoolSize, validation.Min(0)),
		validation.Field(&r.DialTimeout, validation.Min(time.Duration(0))),
	)
}

func (c Config) sturdycConfig() cacheinfra.SturdycConfig {
	return cacheinfra.SturdycConfig{
		Capacity:           c.Sturdyc.Capacity,
		NumShards:          c.Sturdyc.NumShards,
		TTL:                max(c.TTL, c.RegistryTTL),
		DefaultTTL:         c.TTL,
		EvictionPercentage: c.Sturdyc.EvictionPercentage,
		EvictionInterval:   c.Sturdyc.EvictionInterval,
	}
}

// NewStore validates cfg and builds the configured Store. Stores holding
// resources implement io.Closer; release them with Close.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendMemory:
		return cacheinfra.NewMemoryStore(
			cacheinfra.WithMemoryDefaultTTL(cfg.TTL),
			cacheinfra.WithCleanupInterval(cfg.CleanupInterval),
		), nil

	case BackendSturdyc:
		store, err := cacheinfra.NewSturdycStore(cfg.sturdycConfig())
		if err != nil {
			return nil, err
		}
		return store, nil

	case BackendRedis:
		c, err := codec.Lookup(cfg.Redis.Codec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		client, err := cacheinfra.OpenRedis(ctx, cfg.Redis.URL,
			cacheinfra.WithPoolSize(cfg.Redis.PoolSize),
			cacheinfra.WithDialTimeout(cfg.Redis.DialTimeout),
		)
		if err != nil {
			return nil, err
		}
		return cacheinfra.NewRedisStore(client,
			cacheinfra.WithRedisPrefix(cfg.Redis.Prefix),
			cacheinfra.WithRedisCodec(c),
			cacheinfra.WithRedisDefaultTTL(cfg.TTL),
			cacheinfra.WithRedisOwnedClient(),
		), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

var (
	_ Store   = (*cacheinfra.MemoryStore)(nil)
	_ Updater = (*cacheinfra.MemoryStore)(nil)
	_ Store   = (*cacheinfra.SturdycStore)(nil)
	_ Updater = (*cacheinfra.SturdycStore)(nil)
	_ Store   = (*cacheinfra.RedisStore)(nil)
	_ Updater = (*cacheinfra.RedisStore)(nil)
)
