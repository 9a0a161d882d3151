package wire

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrSerialization is returned by Encode when a payload cannot be carried
// over the wire, whether because cbor's reflection-based encoder rejects
// the underlying Go value (chan, func, unsafe.Pointer) or because the
// value contains a reference cycle that would otherwise recurse forever.
var ErrSerialization = fmt.Errorf("serialization")

var canonicalEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building canonical cbor enc mode: %v", err))
	}
	return mode
}()

// Encode serializes env as canonical CBOR: keys in fixed order, no
// whitespace variance, so that Sign/Verify over the resulting bytes is
// reproducible across implementations and releases.
func Encode(env Envelope) ([]byte, error) {
	if err := checkAcyclic(env.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	data, err := canonicalEncMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	return data, nil
}

// Decode parses bytes previously produced by Encode.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return env, nil
}

// checkAcyclic walks v's reachable pointers looking for a cycle. cbor's
// encoder has no such guard and would recurse until the stack overflows;
// every payload in this protocol is a flat, pointer-free DTO so in
// practice this only ever terminates immediately, but it is cheap
// insurance for anything built by hand outside this package's own types.
func checkAcyclic(v any) error {
	return walkAcyclic(reflect.ValueOf(v), make(map[uintptr]bool))
}

func walkAcyclic(rv reflect.Value, visited map[uintptr]bool) error {
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Errorf("unsupported kind %s", rv.Kind())

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Ptr {
			ptr := rv.Pointer()
			if visited[ptr] {
				return fmt.Errorf("cyclic reference detected")
			}
			visited[ptr] = true
			defer delete(visited, ptr)
		}
		return walkAcyclic(rv.Elem(), visited)

	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Field(i).CanInterface() {
				continue
			}
			if err := walkAcyclic(rv.Field(i), visited); err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := walkAcyclic(rv.Index(i), visited); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		for _, key := range rv.MapKeys() {
			if err := walkAcyclic(rv.MapIndex(key), visited); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}
