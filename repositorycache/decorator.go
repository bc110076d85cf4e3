package repositorycache

import (
	"context"
	"maps"
	"reflect"
	"slices"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-proxy-cache/cache"
	"github.com/goliatone/go-proxy-cache/proxy"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult carries the List tuple through the cache.
type listResult[T any] struct {
	Records []T `json:"records" msgpack:"records"`
	Total   int `json:"total" msgpack:"total"`
}

var (
	createTargets = []string{"List", "Count"}
	// "Get" also covers GetByID and GetByIdentifier.
	writeTargets = []string{"Get", "List", "Count"}
)

// DefaultInvalidationMap maps each write method to the read methods it
// purges. Creates only change collections; updates and deletes can change
// any record.
func DefaultInvalidationMap() map[string][]string {
	m := make(map[string][]string)
	for _, name := range []string{"Create", "CreateTx", "CreateMany", "CreateManyTx", "GetOrCreate", "GetOrCreateTx"} {
		m[name] = slices.Clone(createTargets)
	}
	for _, name := range []string{
		"Update", "UpdateTx", "UpdateMany", "UpdateManyTx",
		"Upsert", "UpsertTx", "UpsertMany", "UpsertManyTx",
		"Delete", "DeleteTx", "DeleteMany", "DeleteManyTx",
		"DeleteWhere", "DeleteWhereTx", "ForceDelete", "ForceDeleteTx",
	} {
		m[name] = slices.Clone(writeTargets)
	}
	return m
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	invalidations map[string][]string
	proxyOpts     []proxy.Option
}

// WithInvalidationMap replaces the default invalidation map. Write methods
// missing from m purge nothing.
func WithInvalidationMap(m map[string][]string) Option {
	return func(o *options) {
		o.invalidations = m
	}
}

// WithProxyOptions passes options to the engine built by New. NewWithEngine
// receives a configured engine and ignores them; callers building their own
// engine read them back with EngineOptions.
func WithProxyOptions(opts ...proxy.Option) Option {
	return func(o *options) {
		o.proxyOpts = append(o.proxyOpts, opts...)
	}
}

// EngineOptions returns the proxy options collected by WithProxyOptions.
func EngineOptions(opts ...Option) []proxy.Option {
	return applyOptions(opts).proxyOpts
}

// CachedRepository decorates a base repository with caching. Reads outside
// transactions are memoized; writes purge the reads named in the
// invalidation map before running.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	engine        *proxy.Engine
	invalidations map[string][]string

	get             proxy.Func
	getByID         proxy.Func
	getByIdentifier proxy.Func
	list            proxy.Func
	count           proxy.Func
}

// New wraps base with an engine caching into store.
func New[T any](base repository.Repository[T], store cache.Store, opts ...Option) (*CachedRepository[T], error) {
	o := applyOptions(opts)
	engine, err := proxy.NewEngine(store, o.proxyOpts...)
	if err != nil {
		return nil, err
	}
	return newCached(base, engine, o), nil
}

// NewWithEngine wraps base with an existing engine, sharing its registry
// and namespace.
func NewWithEngine[T any](base repository.Repository[T], engine *proxy.Engine, opts ...Option) *CachedRepository[T] {
	return newCached(base, engine, applyOptions(opts))
}

func applyOptions(opts []Option) options {
	o := options{invalidations: DefaultInvalidationMap()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newCached[T any](base repository.Repository[T], engine *proxy.Engine, o options) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:          base,
		engine:        engine,
		invalidations: maps.Clone(o.invalidations),
	}

	recordType := reflect.TypeFor[T]()

	c.get = engine.Memoize("Get", recordType, func(ctx context.Context, args proxy.Args) (any, error) {
		return base.Get(ctx, selectCriteria(args, 0)...)
	})
	c.getByID = engine.Memoize("GetByID", recordType, func(ctx context.Context, args proxy.Args) (any, error) {
		return base.GetByID(ctx, args.Positional[0].(string), selectCriteria(args, 1)...)
	})
	c.getByIdentifier = engine.Memoize("GetByIdentifier", recordType, func(ctx context.Context, args proxy.Args) (any, error) {
		return base.GetByIdentifier(ctx, args.Positional[0].(string), selectCriteria(args, 1)...)
	})
	c.list = engine.Memoize("List", reflect.TypeFor[listResult[T]](), func(ctx context.Context, args proxy.Args) (any, error) {
		records, total, err := base.List(ctx, selectCriteria(args, 0)...)
		if err != nil {
			return nil, err
		}
		return listResult[T]{Records: records, Total: total}, nil
	})
	c.count = engine.Memoize("Count", reflect.TypeFor[int](), func(ctx context.Context, args proxy.Args) (any, error) {
		return base.Count(ctx, selectCriteria(args, 0)...)
	})

	return c
}

func selectCriteria(args proxy.Args, i int) []repository.SelectCriteria {
	criteria, _ := args.Positional[i].([]repository.SelectCriteria)
	return criteria
}

func read[R any](ctx context.Context, fn proxy.Func, positional ...any) (R, error) {
	v, err := fn(ctx, proxy.Args{Positional: positional})
	if err != nil {
		var zero R
		return zero, err
	}
	return cache.As[R](v)
}

// Engine returns the engine backing the decorator.
func (c *CachedRepository[T]) Engine() *proxy.Engine {
	return c.engine
}

// invalidate purges the reads mapped to method.
func (c *CachedRepository[T]) invalidate(ctx context.Context, method string) error {
	prefixes := c.invalidations[method]
	if len(prefixes) == 0 {
		return nil
	}
	_, err := c.engine.Purge(ctx, prefixes...)
	return err
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return read[T](ctx, c.get, criteria)
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return read[T](ctx, c.getByID, id, criteria)
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return read[T](ctx, c.getByIdentifier, identifier, criteria)
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	res, err := read[listResult[T]](ctx, c.list, criteria)
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return read[int](ctx, c.count, criteria)
}

func write[R any](ctx context.Context, invalidate func(context.Context, string) error, method string, fn func() (R, error)) (R, error) {
	if err := invalidate(ctx, method); err != nil {
		var zero R
		return zero, err
	}
	return fn()
}

func (c *CachedRepository[T]) exec(ctx context.Context, method string, fn func() error) error {
	if err := c.invalidate(ctx, method); err != nil {
		return err
	}
	return fn()
}

func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return write(ctx, c.invalidate, "Create", func() (T, error) { return c.base.Create(ctx, record, criteria...) })
}

func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return write(ctx, c.invalidate, "CreateTx", func() (T, error) { return c.base.CreateTx(ctx, tx, record, criteria...) })
}

func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return write(ctx, c.invalidate, "CreateMany", func() ([]T, error) { return c.base.CreateMany(ctx, records, criteria...) })
}

func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return write(ctx, c.invalidate, "CreateManyTx", func() ([]T, error) { return c.base.CreateManyTx(ctx, tx, records, criteria...) })
}

// GetOrCreate may insert, so it invalidates like Create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return write(ctx, c.invalidate, "GetOrCreate", func() (T, error) { return c.base.GetOrCreate(ctx, record) })
}

func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return write(ctx, c.invalidate, "GetOrCreateTx", func() (T, error) { return c.base.GetOrCreateTx(ctx, tx, record) })
}

func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return write(ctx, c.invalidate, "Update", func() (T, error) { return c.base.Update(ctx, record, criteria...) })
}

func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return write(ctx, c.invalidate, "UpdateTx", func() (T, error) { return c.base.UpdateTx(ctx, tx, record, criteria...) })
}

func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return write(ctx, c.invalidate, "UpdateMany", func() ([]T, error) { return c.base.UpdateMany(ctx, records, criteria...) })
}

func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return write(ctx, c.invalidate, "UpdateManyTx", func() ([]T, error) { return c.base.UpdateManyTx(ctx, tx, records, criteria...) })
}

func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return write(ctx, c.invalidate, "Upsert", func() (T, error) { return c.base.Upsert(ctx, record, criteria...) })
}

func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return write(ctx, c.invalidate, "UpsertTx", func() (T, error) { return c.base.UpsertTx(ctx, tx, record, criteria...) })
}

func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return write(ctx, c.invalidate, "UpsertMany", func() ([]T, error) { return c.base.UpsertMany(ctx, records, criteria...) })
}

func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return write(ctx, c.invalidate, "UpsertManyTx", func() ([]T, error) { return c.base.UpsertManyTx(ctx, tx, records, criteria...) })
}

func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	return c.exec(ctx, "Delete", func() error { return c.base.Delete(ctx, record) })
}

func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.exec(ctx, "DeleteTx", func() error { return c.base.DeleteTx(ctx, tx, record) })
}

func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.exec(ctx, "DeleteMany", func() error { return c.base.DeleteMany(ctx, criteria...) })
}

func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.exec(ctx, "DeleteManyTx", func() error { return c.base.DeleteManyTx(ctx, tx, criteria...) })
}

func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.exec(ctx, "DeleteWhere", func() error { return c.base.DeleteWhere(ctx, criteria...) })
}

func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.exec(ctx, "DeleteWhereTx", func() error { return c.base.DeleteWhereTx(ctx, tx, criteria...) })
}

// ForceDelete bypasses soft delete in the base repository.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return c.exec(ctx, "ForceDelete", func() error { return c.base.ForceDelete(ctx, record) })
}

func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.exec(ctx, "ForceDeleteTx", func() error { return c.base.ForceDeleteTx(ctx, tx, record) })
}

// Reads inside a transaction may see uncommitted state, so they skip the
// cache.

func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// Raw queries are opaque and never cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}
