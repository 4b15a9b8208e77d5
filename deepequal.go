package folioboard

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// structuralEqual reports whether two values are structurally equal. Hooks use
// it to gate state updates: a push that echoes the current value must not
// trigger downstream recomputation, or optimistic writes feed back on their
// own remote echo.
//
// Composite values are compared by JSON encoding, which gives pairwise
// field/array comparison. Values that do not encode fall back to reference
// equality, an acceptable fast path since such values can only have come from
// the same place.
func structuralEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ab, aerr := json.Marshal(a)
	bb, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return refEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}

func refEqual(a, b any) bool {
	ra := reflect.ValueOf(a)
	rb := reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}
	if !ra.Type().Comparable() || ra.Type() != rb.Type() {
		return false
	}
	return a == b
}
