// Package codec converts cached values to and from bytes for stores that
// cannot hold Go values directly, such as Redis.
//
// Byte-oriented stores return an Encoded value from Get. The payload is
// decoded lazily, once the caller knows which type it expects: an empty
// interface is a poor target for msgpack or JSON when the original value was
// a struct or a typed slice.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors for value serialization.
var (
	// ErrMarshal is returned when a value cannot be serialized.
	ErrMarshal = errors.New("codec: failed to marshal value")

	// ErrUnmarshal is returned when stored bytes cannot be deserialized.
	ErrUnmarshal = errors.New("codec: failed to unmarshal value")

	// ErrUnknownCodec is returned by Lookup for unregistered names.
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// Codec serializes and deserializes values.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Msgpack is the default codec. It is compact and keeps integer and binary
// types intact better than JSON does.
var Msgpack Codec = msgpackCodec{}

// JSON trades size for readability when inspecting the store by hand.
var JSON Codec = jsonCodec{}

// Lookup returns the codec registered under name. An empty name selects
// Msgpack.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", "msgpack":
		return Msgpack, nil
	case "json":
		return JSON, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrMarshal, err)
	}
	return data, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Join(ErrUnmarshal, err)
	}
	return nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrMarshal, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(ErrUnmarshal, err)
	}
	return nil
}

// Encoded is a stored payload that has not been decoded yet.
type Encoded struct {
	Data  []byte
	Codec Codec
}

// Decode unmarshals the payload into dst, which must be a non-nil pointer.
func (e Encoded) Decode(dst any) error {
	c := e.Codec
	if c == nil {
		c = Msgpack
	}
	return c.Unmarshal(e.Data, dst)
}

// DecodeAs unmarshals the payload into a fresh value of type t and returns it.
// A nil t decodes into an empty interface.
func (e Encoded) DecodeAs(t reflect.Type) (any, error) {
	if t == nil {
		var out any
		if err := e.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}

	ptr := reflect.New(t)
	if err := e.Decode(ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
