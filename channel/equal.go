package channel

import (
	"math"
	"reflect"
)

// Equal reports whether two selections are the same for notification
// purposes.
type Equal[R any] func(a, b R) bool

// Shallow compares by identity for reference kinds and by value for
// everything stored inline. NaN equals NaN. Slices are the same when they share a backing
// array and length; maps, pointers, channels and funcs when they point at the
// same thing. Structs, arrays and interfaces compare their contents with the
// same rule, so a struct of slices is equal when every slice is identical.
func Shallow[R any](a, b R) bool {
	return shallow(reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem())
}

// Deep compares with reflect.DeepEqual.
func Deep[R any](a, b R) bool {
	return reflect.DeepEqual(a, b)
}

func shallow(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}
	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		return sameFloat(a.Float(), b.Float())
	case reflect.Complex64, reflect.Complex128:
		x, y := a.Complex(), b.Complex()
		return sameFloat(real(x), real(y)) && sameFloat(imag(x), imag(y))
	case reflect.String:
		return a.String() == b.String()
	case reflect.Slice:
		if a.IsNil() != b.IsNil() || a.Len() != b.Len() {
			return false
		}
		return a.Len() == 0 || a.Pointer() == b.Pointer()
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return shallow(a.Elem(), b.Elem())
	case reflect.Struct:
		for i := range a.NumField() {
			if !shallow(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := range a.Len() {
			if !shallow(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	}
	return false
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
