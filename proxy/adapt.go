package proxy

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	kwargsType  = reflect.TypeFor[Kwargs]()
	anyMapType  = reflect.TypeFor[map[string]any]()
)

// signature records how a Go function maps onto Func.
type signature struct {
	fn         reflect.Value
	takesCtx   bool
	takesKw    bool
	variadic   bool
	params     []reflect.Type // fixed positional parameters
	variadicOf reflect.Type
	resultType reflect.Type
	returnsErr bool
}

// adaptFunc builds a Func around fn. Accepted shapes:
//
//	func([ctx context.Context,] params... [, kwargs Kwargs]) [(T)] [error]
//	func([ctx context.Context,] params..., rest ...V) [(T)] [error]
func adaptFunc(name string, fn reflect.Value) (Method, error) {
	sig, err := inspect(fn)
	if err != nil {
		return Method{}, fmt.Errorf("%w: %s: %w", ErrNotBindable, name, err)
	}
	return Method{
		Name:       name,
		Fn:         sig.call(name),
		ResultType: sig.resultType,
	}, nil
}

func inspect(fn reflect.Value) (signature, error) {
	t := fn.Type()
	if t.Kind() != reflect.Func {
		return signature{}, fmt.Errorf("not a function: %s", t)
	}

	sig := signature{fn: fn, variadic: t.IsVariadic()}

	first, last := 0, t.NumIn()
	if last > 0 && t.In(0) == contextType {
		sig.takesCtx = true
		first = 1
	}
	if sig.variadic {
		last--
		sig.variadicOf = t.In(last).Elem()
	} else if last > first && (t.In(last-1) == kwargsType || t.In(last-1) == anyMapType) {
		sig.takesKw = true
		last--
	}
	for i := first; i < last; i++ {
		sig.params = append(sig.params, t.In(i))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			sig.returnsErr = true
		} else {
			sig.resultType = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return signature{}, fmt.Errorf("second result must be error: %s", t)
		}
		sig.resultType = t.Out(0)
		sig.returnsErr = true
	default:
		return signature{}, fmt.Errorf("too many results: %s", t)
	}

	return sig, nil
}

func (sig signature) call(name string) Func {
	return func(ctx context.Context, args Args) (any, error) {
		in, err := sig.arguments(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadArguments, name, err)
		}

		out := sig.fn.Call(in)

		var result any
		if sig.resultType != nil {
			result = out[0].Interface()
		}
		if sig.returnsErr {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
}

func (sig signature) arguments(ctx context.Context, args Args) ([]reflect.Value, error) {
	n := len(args.Positional)
	if n < len(sig.params) || (!sig.variadic && n > len(sig.params)) {
		return nil, fmt.Errorf("want %d positional arguments, got %d", len(sig.params), n)
	}
	if !sig.takesKw && len(args.Keyword) > 0 {
		return nil, fmt.Errorf("keyword arguments not accepted")
	}

	in := make([]reflect.Value, 0, n+2)
	if sig.takesCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}

	for i, t := range sig.params {
		v, err := convertArg(args.Positional[i], t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}

	if sig.takesKw {
		kwType := sig.fn.Type().In(len(in))
		if args.Keyword == nil {
			in = append(in, reflect.Zero(kwType))
		} else {
			in = append(in, reflect.ValueOf(args.Keyword).Convert(kwType))
		}
	}

	for i := len(sig.params); i < n; i++ {
		v, err := convertArg(args.Positional[i], sig.variadicOf)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}

	return in, nil
}

// convertArg fits v to parameter type t. Assignable values pass as is;
// numbers are converted between numeric kinds, and named types are
// converted from their underlying kind.
func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil for %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if (isNumeric(rv.Kind()) && isNumeric(t.Kind())) || rv.Kind() == t.Kind() {
		if rv.Type().ConvertibleTo(t) {
			return rv.Convert(t), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
