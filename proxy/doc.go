// Package proxy puts a cache in front of an object's methods.
//
// A Proxy is a dispatch table built once from a target. Methods listed as
// cached are memoized: the call is turned into a key, the store is checked,
// and the target only runs on a miss. Methods listed as invalidating purge
// the cached entries of other methods before they run.
//
//	p, err := proxy.Bind(users, store,
//		[]string{"get_users", "get_user"},
//		map[string][]string{"delete_user": {"get_user"}},
//	)
//
//	all, err := p.Call(ctx, "get_users")      // runs GetUsers, caches
//	all, err = p.Call(ctx, "get_users")       // served from the store
//	_, err = p.Call(ctx, "delete_user", "Bob") // purges get_user* entries
//
// # Registry
//
// Every memoized key is recorded in a registry kept in the store under
// "methods_list" (namespaced when a namespace is set). Invalidation reads
// the registry, deletes the matching entries and writes the remaining keys
// back. On stores implementing cache.Updater the write is an atomic
// read-modify-write; otherwise a per-registry mutex orders updates within
// the process.
//
// Invalidation prefixes are plain string prefixes by default, so
// "get_user" also purges "get_users" entries. WithExactMethodMatch limits a
// prefix to whole method names.
//
// # Semantics
//
//   - Results are cached whenever the method returns no error, zero values
//     and nil included.
//   - Errors are returned as produced by the target.
//   - Purging happens before the invalidating method runs and is not undone
//     when it fails.
//   - A method that is both cached and invalidating purges first, then
//     memoizes.
//   - Slice and map results are copied one level deep on the way into and
//     out of the store. Pointers and nested values are shared with the
//     cached entry and must not be mutated.
//
// # Method shapes
//
// Bind adapts methods of the form
//
//	func([ctx context.Context,] params... [, kw proxy.Kwargs]) ([T,] [error])
//
// Variadic methods are supported; they cannot take keyword arguments.
// Numeric arguments are converted to the parameter type, so values decoded
// from JSON (float64) can be passed to int parameters.
package proxy
