package proxy

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/goliatone/go-proxy-cache/cache"
)

// Strategy is the caching behaviour bound to a method.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyMemoize
	StrategyInvalidate
	StrategyMemoizeInvalidate
)

func (s Strategy) String() string {
	switch s {
	case StrategyMemoize:
		return "memoize"
	case StrategyInvalidate:
		return "invalidate"
	case StrategyMemoizeInvalidate:
		return "memoize+invalidate"
	default:
		return "none"
	}
}

type binding struct {
	method   Method
	strategy Strategy
	call     Func
}

// Proxy dispatches method calls to a target through the cache. Bindings are
// fixed at construction; other instances of the target type are unaffected.
type Proxy struct {
	target   any
	engine   *Engine
	bindings map[string]*binding
	names    []string
}

// Bind wraps the exported methods of target. Names in cached are memoized;
// each key of invalidates purges the listed method prefixes before running.
// Names may be given as Go method names or in snake_case (GetUsers or
// get_users); cache keys use the configured spelling.
func Bind(target any, store cache.Store, cached []string, invalidates map[string][]string, opts ...Option) (*Proxy, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrNotBindable)
	}

	methods, aliases := discover(target)
	if len(aliases) == 0 {
		return nil, fmt.Errorf("%w: %T has no exported methods", ErrNotBindable, target)
	}

	p, err := newProxy(target, store, opts...)
	if err != nil {
		return nil, err
	}

	resolve := func(name string) (*binding, error) {
		goName, ok := aliases[name]
		if !ok {
			return nil, fmt.Errorf("%w: %T has no method %q", ErrUnknownMethod, target, name)
		}
		b := p.bindings[goName]
		if b == nil {
			return nil, fmt.Errorf("%w: %T.%s has an unsupported signature", ErrNotBindable, target, goName)
		}
		if b.strategy == StrategyNone {
			// Keys use the configured spelling.
			b.method.Name = name
		}
		return b, nil
	}

	for goName, m := range methods {
		p.bindings[goName] = &binding{method: m}
	}
	if err := p.configure(cached, invalidates, resolve); err != nil {
		return nil, err
	}

	for alias, goName := range aliases {
		if b := p.bindings[goName]; b != nil {
			p.bindings[alias] = b
		}
	}
	p.names = slices.Sorted(maps.Keys(methods))

	return p, nil
}

// Construct calls ctor with ctorArgs and binds the instance it returns. ctor
// must return the instance, optionally followed by an error.
func Construct(ctor any, ctorArgs []any, store cache.Store, cached []string, invalidates map[string][]string, opts ...Option) (*Proxy, error) {
	fn := reflect.ValueOf(ctor)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: constructor is %T", ErrNotBindable, ctor)
	}

	m, err := adaptFunc("constructor", fn)
	if err != nil {
		return nil, err
	}
	if m.ResultType == nil {
		return nil, fmt.Errorf("%w: constructor returns no instance", ErrNotBindable)
	}

	instance, err := m.Fn(context.Background(), Args{Positional: ctorArgs})
	if err != nil {
		return nil, err
	}
	return Bind(instance, store, cached, invalidates, opts...)
}

// FromMethods builds a proxy over an explicit method table.
func FromMethods(methods map[string]Func, store cache.Store, cached []string, invalidates map[string][]string, opts ...Option) (*Proxy, error) {
	table := make([]Method, 0, len(methods))
	for name, fn := range methods {
		table = append(table, Method{Name: name, Fn: fn})
	}
	return FromTable(table, store, cached, invalidates, opts...)
}

// FromTable is FromMethods with result types, so values read back from byte
// oriented stores decode into the right type.
func FromTable(methods []Method, store cache.Store, cached []string, invalidates map[string][]string, opts ...Option) (*Proxy, error) {
	p, err := newProxy(nil, store, opts...)
	if err != nil {
		return nil, err
	}

	for _, m := range methods {
		if m.Fn == nil {
			return nil, fmt.Errorf("%w: %s has no function", ErrNotBindable, m.Name)
		}
		p.bindings[m.Name] = &binding{method: m}
		p.names = append(p.names, m.Name)
	}
	slices.Sort(p.names)

	resolve := func(name string) (*binding, error) {
		b, ok := p.bindings[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
		}
		return b, nil
	}
	if err := p.configure(cached, invalidates, resolve); err != nil {
		return nil, err
	}
	return p, nil
}

func newProxy(target any, store cache.Store, opts ...Option) (*Proxy, error) {
	engine, err := NewEngine(store, opts...)
	if err != nil {
		return nil, err
	}
	return &Proxy{
		target:   target,
		engine:   engine,
		bindings: make(map[string]*binding),
	}, nil
}

// configure assigns strategies and composes raw, memoize, invalidate in
// that order. Unknown names fail before anything is wrapped.
func (p *Proxy) configure(cached []string, invalidates map[string][]string, resolve func(string) (*binding, error)) error {
	memo := make(map[*binding]bool, len(cached))
	for _, name := range cached {
		b, err := resolve(name)
		if err != nil {
			return err
		}
		memo[b] = true
		b.strategy = StrategyMemoize
	}

	inval := make(map[*binding][]string, len(invalidates))
	for _, name := range slices.Sorted(maps.Keys(invalidates)) {
		b, err := resolve(name)
		if err != nil {
			return err
		}
		inval[b] = slices.Clone(invalidates[name])
		if memo[b] {
			b.strategy = StrategyMemoizeInvalidate
		} else {
			b.strategy = StrategyInvalidate
		}
	}

	for _, b := range p.bindings {
		fn := b.method.Fn
		if memo[b] {
			fn = p.engine.Memoize(b.method.Name, b.method.ResultType, fn)
		}
		if prefixes, ok := inval[b]; ok {
			fn = p.engine.Invalidate(b.method.Name, prefixes, fn)
		}
		b.call = fn
	}
	return nil
}

// discover adapts the exported methods of target. methods is keyed by Go
// name; aliases maps both Go and snake_case names to the Go name. Methods
// with unsupported signatures are listed in aliases but not in methods.
func discover(target any) (map[string]Method, map[string]string) {
	v := reflect.ValueOf(target)
	t := v.Type()

	methods := make(map[string]Method, t.NumMethod())
	aliases := make(map[string]string, 2*t.NumMethod())

	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		aliases[name] = name
		if snake := snakeCase(name); snake != name {
			if _, taken := aliases[snake]; !taken {
				aliases[snake] = name
			}
		}

		if m, err := adaptFunc(name, v.Method(i)); err == nil {
			methods[name] = m
		}
	}
	return methods, aliases
}

// Invoke calls method name with args.
func (p *Proxy) Invoke(ctx context.Context, name string, args Args) (any, error) {
	b, ok := p.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return b.call(ctx, args)
}

// Call calls method name with positional arguments.
func (p *Proxy) Call(ctx context.Context, name string, positional ...any) (any, error) {
	return p.Invoke(ctx, name, Args{Positional: positional})
}

// CallKw calls method name with keyword and positional arguments.
func (p *Proxy) CallKw(ctx context.Context, name string, kwargs Kwargs, positional ...any) (any, error) {
	return p.Invoke(ctx, name, Args{Positional: positional, Keyword: kwargs})
}

// CallAs calls method name and converts the result to T.
func CallAs[T any](ctx context.Context, p *Proxy, name string, positional ...any) (T, error) {
	v, err := p.Call(ctx, name, positional...)
	if err != nil {
		var zero T
		return zero, err
	}
	return cache.As[T](v)
}

// Target returns the wrapped instance, nil for table proxies.
func (p *Proxy) Target() any { return p.target }

// Engine returns the engine shared by the bound methods.
func (p *Proxy) Engine() *Engine { return p.engine }

// Store returns the backing store.
func (p *Proxy) Store() cache.Store { return p.engine.Store() }

// Registry returns the method registry.
func (p *Proxy) Registry() *Registry { return p.engine.Registry() }

// Strategy reports the strategy bound to name.
func (p *Proxy) Strategy(name string) (Strategy, bool) {
	b, ok := p.bindings[name]
	if !ok {
		return StrategyNone, false
	}
	return b.strategy, true
}

// Methods returns the dispatchable method names, sorted.
func (p *Proxy) Methods() []string {
	return slices.Clone(p.names)
}
