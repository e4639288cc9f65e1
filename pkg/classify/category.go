package classify

import (
	"fmt"
	"strings"
)

// Category is the engine's taxonomy of how a type must be copied.
type Category uint8

const (
	// Ignored types are never copied; the copy holds the zero value.
	Ignored Category = iota

	// SafeShare types are returned as-is.
	SafeShare

	// ValueAggregate covers structs and fixed-size arrays.
	ValueAggregate

	// FunctionReference covers func values.
	FunctionReference

	// ReferenceAggregate covers pointers and interfaces.
	ReferenceAggregate

	// Array covers slices and rank-N arrays.
	Array

	// AssociativeContainer covers maps and registered containers.
	AssociativeContainer
)

var categoryNames = [...]string{
	Ignored:              "ignored",
	SafeShare:            "safe",
	ValueAggregate:       "value",
	FunctionReference:    "func",
	ReferenceAggregate:   "reference",
	Array:                "array",
	AssociativeContainer: "container",
}

// String returns the lower-case name used in config files and policies.
func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// ParseCategory converts a category name back to a Category.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range categoryNames {
		if n == name {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", s)
}
