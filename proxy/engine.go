package proxy

import (
	"context"
	"fmt"
	"reflect"

	"github.com/apex/log"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-proxy-cache/cache"
	"github.com/goliatone/go-proxy-cache/pkg/codec"
)

// Engine builds the memoizing and invalidating wrappers around methods.
// One engine serves every method of a proxy; it is safe for concurrent use.
type Engine struct {
	store     cache.Store
	registry  *Registry
	settings  settings
	group     *singleflight.Group
	namespace string
}

// NewEngine returns an engine caching into store.
func NewEngine(store cache.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	e := &Engine{
		store:    store,
		settings: s,
	}
	if s.namespace != "" {
		e.namespace = s.namespace + ":"
	}
	if s.singleflight {
		e.group = &singleflight.Group{}
	}

	e.registry = NewRegistry(store, e.namespace+s.registryKey, s.registryTTL)
	e.registry.logger = s.logger

	return e, nil
}

// Store returns the backing store.
func (e *Engine) Store() cache.Store { return e.store }

// Registry returns the method registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Namespace returns the key namespace, empty when none is set.
func (e *Engine) Namespace() string { return e.settings.namespace }

// Key returns the cache key for calling method with args.
func (e *Engine) Key(method string, args Args) string {
	return e.namespace + e.settings.keys.SerializeKey(method, args.Positional, args.Keyword)
}

// Memoize wraps fn so results are served from the store when present.
//
// Successful results are stored with the engine TTL, including zero values
// and nil. Errors are returned unchanged and nothing is cached. Every call
// registers its key.
func (e *Engine) Memoize(name string, resultType reflect.Type, fn Func) Func {
	logger := e.settings.logger.WithField("method", name)

	return func(ctx context.Context, args Args) (any, error) {
		key := e.Key(name, args)

		if !cacheBypassed(ctx) {
			v, found, err := e.store.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("proxy: %s: read %q: %w", name, key, err)
			}
			if found {
				result, err := decodeResult(v, resultType)
				if err == nil {
					e.settings.metrics.Hit(name)
					logger.WithField("key", key).Debug("cache hit")
					if err := e.registry.Register(ctx, key); err != nil {
						return nil, fmt.Errorf("proxy: %s: register: %w", name, err)
					}
					return result, nil
				}
				logger.WithError(err).WithField("key", key).Warn("cached value unreadable, reloading")
			}
		}

		e.settings.metrics.Miss(name)
		logger.WithField("key", key).Debug("cache miss")

		result, err := e.load(ctx, name, key, args, fn)
		if err != nil {
			return nil, err
		}

		if err := e.registry.Register(ctx, key); err != nil {
			return nil, fmt.Errorf("proxy: %s: register: %w", name, err)
		}
		return result, nil
	}
}

func (e *Engine) load(ctx context.Context, name, key string, args Args, fn Func) (any, error) {
	call := func() (any, error) {
		result, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		if err := e.store.Set(ctx, key, detach(result), e.settings.ttl); err != nil {
			return nil, fmt.Errorf("proxy: %s: write %q: %w", name, key, err)
		}
		return result, nil
	}

	if e.group == nil {
		return call()
	}

	result, err, shared := e.group.Do(key, call)
	if shared {
		e.settings.logger.WithField("method", name).WithField("key", key).Debug("shared load")
		result = detach(result)
	}
	return result, err
}

// Invalidate wraps fn so entries of the methods named by prefixes are purged
// before fn runs. The purge is not undone when fn fails.
func (e *Engine) Invalidate(name string, prefixes []string, fn Func) Func {
	scoped := e.scope(prefixes)
	logger := e.settings.logger.WithField("method", name)

	return func(ctx context.Context, args Args) (any, error) {
		if len(scoped) > 0 {
			purged, err := e.registry.Purge(ctx, e.settings.mode, scoped...)
			if err != nil {
				return nil, fmt.Errorf("proxy: %s: invalidate: %w", name, err)
			}
			if len(purged) > 0 {
				e.settings.metrics.Invalidated(name, len(purged))
				logger.WithFields(log.Fields{
					"count": len(purged),
					"keys":  purged,
				}).Debug("invalidated")
			}
		}
		return fn(ctx, args)
	}
}

// Purge removes the cached entries of the given method name prefixes outside
// of any method call.
func (e *Engine) Purge(ctx context.Context, prefixes ...string) ([]string, error) {
	return e.registry.Purge(ctx, e.settings.mode, e.scope(prefixes)...)
}

func (e *Engine) scope(prefixes []string) []string {
	scoped := make([]string, len(prefixes))
	for i, p := range prefixes {
		scoped[i] = e.namespace + p
	}
	return scoped
}

// decodeResult turns a stored value back into the method result type.
func decodeResult(v any, t reflect.Type) (any, error) {
	enc, ok := v.(codec.Encoded)
	if !ok {
		return detach(v), nil
	}
	result, err := enc.DecodeAs(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cache.ErrInvalidResultType, err)
	}
	return result, nil
}

// detach returns a shallow copy of slice and map values so callers mutating a
// result never write into the entry held by an in-process store. Elements are
// not copied; pointers and everything else are returned as is.
func detach(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	default:
		return v
	}
}
