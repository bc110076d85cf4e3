package di

import (
	"context"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-proxy-cache/cache"
	"github.com/goliatone/go-proxy-cache/proxy"
	"github.com/goliatone/go-proxy-cache/repositorycache"
)

// Container owns the store and key serializer shared by every proxy and
// cached repository it builds.
type Container struct {
	store         cache.Store
	keySerializer cache.KeySerializer
	config        cache.Config
	opts          []proxy.Option
}

// NewContainer validates config, opens its store and sets up the default
// key serializer. opts are applied to every proxy and repository the
// container builds, after the config.
func NewContainer(ctx context.Context, config cache.Config, opts ...proxy.Option) (*Container, error) {
	store, err := cache.NewStore(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Container{
		store:         store,
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        config,
		opts:          opts,
	}, nil
}

// NewContainerWithDefaults creates a container with an in-memory store and
// the default configuration.
func NewContainerWithDefaults(ctx context.Context, opts ...proxy.Option) (*Container, error) {
	return NewContainer(ctx, cache.DefaultConfig(), opts...)
}

// Store returns the shared store.
func (c *Container) Store() cache.Store {
	return c.store
}

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration the container was built with.
func (c *Container) Config() cache.Config {
	return c.config
}

func (c *Container) options(extra ...proxy.Option) []proxy.Option {
	opts := []proxy.Option{
		proxy.WithConfig(c.config),
		proxy.WithKeySerializer(c.keySerializer),
	}
	opts = append(opts, c.opts...)
	return append(opts, extra...)
}

// NewEngine returns an engine on the shared store.
func (c *Container) NewEngine(opts ...proxy.Option) (*proxy.Engine, error) {
	return proxy.NewEngine(c.store, c.options(opts...)...)
}

// NewProxy binds target on the shared store. See proxy.Bind.
func (c *Container) NewProxy(target any, cached []string, invalidates map[string][]string, opts ...proxy.Option) (*proxy.Proxy, error) {
	return proxy.Bind(target, c.store, cached, invalidates, c.options(opts...)...)
}

// Close releases the store.
func (c *Container) Close() error {
	return cache.Close(c.store)
}

// NewCachedRepository wraps base with a cache on the container store.
//
// Each record type gets its own namespace, named after T, so repositories of
// different types never share keys or invalidations. Proxy options given via
// repositorycache.WithProxyOptions are applied after the container's own.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) (*repositorycache.CachedRepository[T], error) {
	engineOpts := append([]proxy.Option{proxy.WithNamespace(reflect.TypeFor[T]().String())}, repositorycache.EngineOptions(opts...)...)
	engine, err := container.NewEngine(engineOpts...)
	if err != nil {
		return nil, err
	}
	return repositorycache.NewWithEngine(base, engine, opts...), nil
}
