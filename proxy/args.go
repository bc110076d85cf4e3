package proxy

import (
	"context"
	"reflect"
)

// Kwargs holds keyword arguments. Methods that accept them declare a
// trailing Kwargs (or map[string]any) parameter.
type Kwargs map[string]any

// Args is one call's arguments.
type Args struct {
	Positional []any
	Keyword    Kwargs
}

// Func is the uniform shape every proxied method is adapted to.
type Func func(ctx context.Context, args Args) (any, error)

// Method describes one dispatchable method.
type Method struct {
	Name string
	Fn   Func
	// ResultType is the static type of the method result, nil when unknown.
	// Values read back from byte oriented stores are decoded into it.
	ResultType reflect.Type
}
