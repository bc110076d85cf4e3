package cache

import "errors"

var (
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("cache: invalid config")

	// ErrInvalidResultType is returned when a cached value cannot be
	// converted to the type the caller asked for.
	ErrInvalidResultType = errors.New("cache: invalid result type")

	// ErrUnknownBackend is returned by NewStore for unsupported backends.
	ErrUnknownBackend = errors.New("cache: unknown backend")
)
