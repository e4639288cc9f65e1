package classify

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TagName is the struct tag key read by the engine.
const TagName = "deepclone"

// FieldMode is the per-field override read from the deepclone struct tag.
type FieldMode uint8

const (
	// FieldDefault copies the field according to its type's category.
	FieldDefault FieldMode = iota

	// FieldSkip (deepclone:"-") leaves the zero value in the copy.
	FieldSkip

	// FieldShallow (deepclone:"shallow") aliases the field as-is.
	FieldShallow

	// FieldEvent (deepclone:"event") marks an event backing field, which is
	// cleared in the copy.
	FieldEvent
)

// ModeOf returns the tag-declared mode of f.
func ModeOf(f reflect.StructField) FieldMode {
	tag, ok := f.Tag.Lookup(TagName)
	if !ok {
		return FieldDefault
	}
	name, _, _ := strings.Cut(tag, ",")
	switch strings.TrimSpace(name) {
	case "-":
		return FieldSkip
	case "shallow":
		return FieldShallow
	case "event":
		return FieldEvent
	default:
		return FieldDefault
	}
}

var listenerSuffixes = []string{"listeners", "handlers", "subscribers", "callbacks"}

// IsEventField reports whether f backs an observable event: its type carries
// functions and it is either tagged deepclone:"event" or, with the registry's
// naming convention enabled, named like a listener list (OnChange, onClose,
// changeListeners, ...).
//
// The naming convention is a heuristic. A func field that merely looks like a
// listener, such as a lazy initializer called OnDemand, is cleared as well;
// tag such fields deepclone:"shallow" to keep them.
func IsEventField(r *Registry, f reflect.StructField) bool {
	if !carriesFuncs(f.Type) {
		return false
	}
	switch ModeOf(f) {
	case FieldEvent:
		return true
	case FieldShallow, FieldSkip:
		return false
	}
	if r == nil || !r.EventConvention() {
		return false
	}
	return looksLikeListener(f.Name)
}

func carriesFuncs(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Func:
		return true
	case reflect.Slice, reflect.Array, reflect.Map:
		return t.Elem().Kind() == reflect.Func
	default:
		return false
	}
}

func looksLikeListener(name string) bool {
	for _, prefix := range []string{"On", "on"} {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, suffix := range listenerSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
