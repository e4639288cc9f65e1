package classify

import "reflect"

// TypeInfo describes a type to a Resolver. It is the input document for
// classification policies, hence the JSON tags.
type TypeInfo struct {
	// Name is the declared name, empty for unnamed types.
	Name string `json:"name"`

	// PkgPath is the import path of the declaring package.
	PkgPath string `json:"pkg_path"`

	// Kind is the reflect kind (struct, ptr, map, ...).
	Kind string `json:"kind"`

	// Qualified is the name used by the registry's name tables.
	Qualified string `json:"qualified"`

	// String is reflect.Type.String().
	String string `json:"string"`
}

// Describe builds the TypeInfo for t.
func Describe(t reflect.Type) TypeInfo {
	return TypeInfo{
		Name:      t.Name(),
		PkgPath:   t.PkgPath(),
		Kind:      t.Kind().String(),
		Qualified: QualifiedName(t),
		String:    t.String(),
	}
}

// QualifiedName returns the name config files use to refer to t: the full
// import path plus the type name for named types ("sync.Mutex",
// "github.com/google/uuid.UUID"), a leading "*" per pointer level, and
// reflect's string form for other unnamed types.
func QualifiedName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	if t.Kind() == reflect.Pointer {
		return "*" + QualifiedName(t.Elem())
	}
	return t.String()
}
