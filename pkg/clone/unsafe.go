package clone

import (
	"reflect"
	"unsafe"
)

// writable returns a settable view of the addressable value v, lifting the
// read-only flag reflect puts on values reached through unexported fields.
func writable(v reflect.Value) reflect.Value {
	if v.CanSet() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

// fieldAt returns a settable view of the field at offset inside the
// addressable struct value base.
func fieldAt(base reflect.Value, offset uintptr, t reflect.Type) reflect.Value {
	return reflect.NewAt(t, unsafe.Add(unsafe.Pointer(base.UnsafeAddr()), offset)).Elem()
}

// detach copies v into fresh storage so later writes through v do not show
// through the result.
func detach(v reflect.Value) reflect.Value {
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}
