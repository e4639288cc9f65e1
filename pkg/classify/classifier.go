package classify

import "reflect"

// Classify returns the category of t under the tables in r. A nil registry
// behaves like an empty one. The result depends only on t and r, so callers
// may cache it per type.
func Classify(r *Registry, t reflect.Type) Category {
	if t == nil {
		return Ignored
	}
	if r == nil {
		r = emptyRegistry
	}

	if r.IsIgnored(t) {
		return Ignored
	}
	if r.IsSafe(t) {
		return SafeShare
	}
	if _, ok := r.ContainerFor(t); ok {
		return AssociativeContainer
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.Chan, reflect.UnsafePointer:
		return SafeShare
	case reflect.Struct, reflect.Array:
		return ValueAggregate
	case reflect.Func:
		return FunctionReference
	case reflect.Slice:
		return Array
	case reflect.Map:
		return AssociativeContainer
	case reflect.Pointer:
		if IsMultiArray(t) {
			return Array
		}
		return ReferenceAggregate
	default:
		// Interfaces, and anything not covered above, get the most
		// conservative treatment.
		return ReferenceAggregate
	}
}

var emptyRegistry = NewRegistry()
