package proxy

import (
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/goliatone/go-proxy-cache/cache"
)

// Option configures an Engine, and through it a Proxy.
type Option func(*settings)

type settings struct {
	logger       log.Interface
	ttl          time.Duration
	namespace    string
	singleflight bool
	mode         MatchMode
	keys         cache.KeySerializer
	metrics      Metrics
	registryKey  string
	registryTTL  time.Duration
}

func defaultSettings() settings {
	return settings{
		logger:      log.Log,
		mode:        MatchPrefix,
		keys:        cache.NewDefaultKeySerializer(),
		metrics:     NoopMetrics{},
		registryKey: cache.DefaultRegistryKey,
		registryTTL: cache.DefaultRegistryTTL,
	}
}

// WithLogger sets the logger. Default: log.Log.
func WithLogger(logger log.Interface) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTTL sets the lifetime of cached results. Zero keeps the store default.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithNamespace prefixes every cache key, and the registry key, with
// "namespace:". Proxies with different namespaces share a store without
// seeing each other's entries.
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = namespace
	}
}

// WithIsolatedNamespace gives the proxy a random namespace of its own.
func WithIsolatedNamespace() Option {
	return func(s *settings) {
		s.namespace = uuid.NewString()
	}
}

// WithSingleflight collapses concurrent misses on the same key into one
// target call.
func WithSingleflight() Option {
	return func(s *settings) {
		s.singleflight = true
	}
}

// WithExactMethodMatch makes invalidation prefixes match whole method names:
// "get_user" then no longer purges "get_users" entries.
func WithExactMethodMatch() Option {
	return func(s *settings) {
		s.mode = MatchMethod
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(s *settings) {
		if keys != nil {
			s.keys = keys
		}
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRegistryKey overrides the registry store key. Default: methods_list.
func WithRegistryKey(key string) Option {
	return func(s *settings) {
		if key != "" {
			s.registryKey = key
		}
	}
}

// WithRegistryTTL overrides the registry lifetime. Default: one hour.
func WithRegistryTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.registryTTL = ttl
		}
	}
}

// WithConfig applies the TTL and registry settings of cfg.
func WithConfig(cfg cache.Config) Option {
	return func(s *settings) {
		WithTTL(cfg.TTL)(s)
		WithRegistryKey(cfg.RegistryKey)(s)
		WithRegistryTTL(cfg.RegistryTTL)(s)
	}
}
