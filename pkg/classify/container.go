package classify

import (
	"reflect"
	"sync"
)

var anyType = reflect.TypeFor[any]()

// Container rebuilds a keyed collection through its own API. All pointer
// arguments point at the container type the adapter was registered for.
type Container interface {
	// New returns a pointer to an empty container.
	New() reflect.Value

	// KeyType and ElemType are the static types entries are copied as.
	KeyType() reflect.Type
	ElemType() reflect.Type

	// Range calls fn for each entry until fn returns false.
	Range(ptr reflect.Value, fn func(key, elem reflect.Value) bool)

	// Store inserts an entry.
	Store(ptr reflect.Value, key, elem reflect.Value)
}

// SyncMap adapts sync.Map. Its internal layout holds a mutex and atomic
// pointers, so it cannot be copied field by field.
type SyncMap struct{}

// New implements Container.
func (SyncMap) New() reflect.Value {
	return reflect.ValueOf(new(sync.Map))
}

// KeyType implements Container.
func (SyncMap) KeyType() reflect.Type { return anyType }

// ElemType implements Container.
func (SyncMap) ElemType() reflect.Type { return anyType }

// Range implements Container.
func (SyncMap) Range(ptr reflect.Value, fn func(key, elem reflect.Value) bool) {
	m := ptr.Interface().(*sync.Map)
	m.Range(func(k, v any) bool {
		key := reflect.New(anyType).Elem()
		elem := reflect.New(anyType).Elem()
		if k != nil {
			key.Set(reflect.ValueOf(k))
		}
		if v != nil {
			elem.Set(reflect.ValueOf(v))
		}
		return fn(key, elem)
	})
}

// Store implements Container.
func (SyncMap) Store(ptr reflect.Value, key, elem reflect.Value) {
	ptr.Interface().(*sync.Map).Store(key.Interface(), elem.Interface())
}

// MultiArray is implemented by rank-N arrays whose dimensions may start at
// arbitrary lower bounds. The engine walks them with an index vector instead
// of walking their fields.
type MultiArray interface {
	Rank() int
	Length(dim int) int
	LowerBound(dim int) int

	// ElemType is the static element type.
	ElemType() reflect.Type

	// Elem returns the settable element at index, one entry per dimension.
	Elem(index []int) reflect.Value

	// Like returns a zero-filled array with the same shape and bounds.
	Like() MultiArray
}

var multiArrayType = reflect.TypeFor[MultiArray]()

// IsMultiArray reports whether t is a pointer type implementing MultiArray.
func IsMultiArray(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer && t.Implements(multiArrayType)
}
