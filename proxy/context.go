package proxy

import "context"

type bypassContextKey struct{}

// WithoutCache returns a context under which memoized methods skip the cache
// read. The target runs and its result replaces the cached entry.
func WithoutCache(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func cacheBypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	bypass, _ := ctx.Value(bypassContextKey{}).(bool)
	return bypass
}
