package proxy

import "errors"

var (
	// ErrUnknownMethod is returned when a configured or invoked method name
	// does not exist on the target.
	ErrUnknownMethod = errors.New("proxy: unknown method")

	// ErrNotBindable is returned when a target, constructor or method cannot
	// be adapted for dispatch.
	ErrNotBindable = errors.New("proxy: not bindable")

	// ErrBadArguments is returned when call arguments do not fit the method
	// signature.
	ErrBadArguments = errors.New("proxy: bad arguments")

	// ErrNilStore is returned when no store is given.
	ErrNilStore = errors.New("proxy: nil store")
)
