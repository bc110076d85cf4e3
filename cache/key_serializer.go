package cache

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySerializer builds a cache key from a method name and call arguments.
// Implementations must be pure: equal calls produce equal keys, and keyword
// argument order never matters.
type KeySerializer interface {
	SerializeKey(method string, args []any, kwargs map[string]any) string
}

// KeyOption configures the default key serializer.
type KeyOption func(*defaultKeySerializer)

// WithMaxKeyLength hashes the argument part of keys longer than n bytes.
// The method name is kept in clear so prefix invalidation still works.
func WithMaxKeyLength(n int) KeyOption {
	return func(s *defaultKeySerializer) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// defaultKeySerializer renders keys as method(positional)[name=value,...].
type defaultKeySerializer struct {
	maxLen int
}

// NewDefaultKeySerializer creates the default reflection based serializer.
func NewDefaultKeySerializer(opts ...KeyOption) KeySerializer {
	s := &defaultKeySerializer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SerializeKey builds the key for one call.
func (s *defaultKeySerializer) SerializeKey(method string, args []any, kwargs map[string]any) string {
	var b strings.Builder

	b.WriteString(method)
	b.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		writeValue(&b, reflect.ValueOf(arg))
	}
	b.WriteString(")[")

	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		writeValue(&b, reflect.ValueOf(kwargs[name]))
	}
	b.WriteByte(']')

	key := b.String()
	if s.maxLen > 0 && len(key) > s.maxLen {
		return method + "#" + strconv.FormatUint(xxhash.Sum64String(key[len(method):]), 16)
	}
	return key
}

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// visit identifies a reference value on the current walk path. Slices also
// carry their length so a prefix view of the same array is not a cycle.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// valueWriter renders argument values. seen holds the references currently
// being rendered; re-entering one writes a cycle marker.
type valueWriter struct {
	b    *strings.Builder
	seen map[visit]struct{}
}

func writeValue(b *strings.Builder, v reflect.Value) {
	w := valueWriter{b: b}
	w.write(v)
}

// enter records v on the walk path. It returns false when v is already being
// rendered, in which case the caller writes the marker and stops.
func (w *valueWriter) enter(v reflect.Value) (visit, bool) {
	key := visit{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.len = v.Len()
	}
	if key.ptr == 0 {
		return key, true
	}
	if _, ok := w.seen[key]; ok {
		w.b.WriteString("<cycle>")
		return key, false
	}
	if w.seen == nil {
		w.seen = make(map[visit]struct{})
	}
	w.seen[key] = struct{}{}
	return key, true
}

func (w *valueWriter) leave(key visit) {
	delete(w.seen, key)
}

// write appends a deterministic rendering of v.
func (w *valueWriter) write(v reflect.Value) {
	b := w.b
	if !v.IsValid() {
		b.WriteString("nil")
		return
	}

	// time.Time, uuid.UUID and friends carry no exported fields worth walking.
	if k := v.Kind(); k != reflect.Pointer && k != reflect.Interface && v.Type().Implements(textMarshalerType) {
		if text, err := v.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			b.WriteString(strconv.Quote(string(text)))
			return
		}
	}

	switch v.Kind() {
	case reflect.String:
		b.WriteString(strconv.Quote(v.String()))

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		fmt.Fprintf(b, "%v", v.Interface())

	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		w.write(v.Elem())

	case reflect.Pointer:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		key, ok := w.enter(v)
		if !ok {
			return
		}
		w.write(v.Elem())
		w.leave(key)

	case reflect.Slice:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		key, ok := w.enter(v)
		if !ok {
			return
		}
		w.writeList(v)
		w.leave(key)

	case reflect.Array:
		w.writeList(v)

	case reflect.Map:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		key, ok := w.enter(v)
		if !ok {
			return
		}
		w.writeMap(v)
		w.leave(key)

	case reflect.Struct:
		w.writeStruct(v)

	// Stable only within one process.
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		fmt.Fprintf(b, "%s:%#x", v.Kind(), v.Pointer())

	default:
		fmt.Fprintf(b, "<%s>", v.Type())
	}
}

func (w *valueWriter) writeList(v reflect.Value) {
	w.b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.write(v.Index(i))
	}
	w.b.WriteByte(']')
}

// writeMap renders entries sorted by their rendered key.
func (w *valueWriter) writeMap(v reflect.Value) {
	type pair struct{ key, value string }

	pairs := make([]pair, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		var kb, vb strings.Builder
		kw := valueWriter{b: &kb, seen: w.seen}
		kw.write(iter.Key())
		vw := valueWriter{b: &vb, seen: w.seen}
		vw.write(iter.Value())
		pairs = append(pairs, pair{kb.String(), vb.String()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	w.b.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.b.WriteString(p.key)
		w.b.WriteByte(':')
		w.b.WriteString(p.value)
	}
	w.b.WriteByte('}')
}

// writeStruct renders exported fields in declaration order.
func (w *valueWriter) writeStruct(v reflect.Value) {
	t := v.Type()

	w.b.WriteString(t.Name())
	w.b.WriteByte('{')
	first := true
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if !first {
			w.b.WriteByte(',')
		}
		first = false
		w.b.WriteString(field.Name)
		w.b.WriteByte(':')
		w.write(v.Field(i))
	}
	w.b.WriteByte('}')
}
