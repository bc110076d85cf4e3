// Package repositorycache decorates go-repository-bun repositories with the
// method cache from the proxy package.
//
// Reads outside a transaction (Get, GetByID, GetByIdentifier, List, Count)
// are memoized under keys such as `GetByID("user-123",nil)[]`. Writes purge
// the cached reads they can affect before calling the base repository:
//
//	Create, CreateMany, GetOrCreate (and Tx variants)  -> List, Count
//	Update*, Upsert*, Delete*, DeleteWhere*, ForceDelete*  -> Get, List, Count
//
// The "Get" prefix also matches GetByID and GetByIdentifier. Replace the map
// with WithInvalidationMap.
//
// Transaction reads, Raw queries and Handlers always reach the base
// repository.
//
//	cached, err := repositorycache.New(base, store,
//		repositorycache.WithProxyOptions(proxy.WithNamespace("users")),
//	)
//	user, err := cached.GetByID(ctx, "user-123")
//
// Criteria functions are keyed by function identity. Closures built from the
// same function literal share a key regardless of what they capture, so
// pass variable filters as identifiers where possible.
package repositorycache
