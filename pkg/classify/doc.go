// Package classify decides how the clone engine copies each concrete type.
//
// Every reflect.Type maps to exactly one Category. The decision order is fixed:
//
//  1. Ignored - types in the registry's ignore table (sync primitives, OS
//     handles) or marked "ignored" by a Resolver. Copies hold the zero value.
//  2. SafeShare - immutable or alias-safe types (strings, numbers, channels,
//     time.Time, registered types). Copies alias the original.
//  3. ValueAggregate - structs and fixed-size arrays.
//  4. FunctionReference - func values. Go closures do not expose their
//     captured variables, so function values are always aliased.
//  5. ReferenceAggregate - pointers and interfaces. Interfaces are resolved
//     against their dynamic type at copy time, which also makes this the
//     fallback for anything that cannot be classified statically.
//  6. Array - slices and rank-N arrays implementing MultiArray.
//  7. AssociativeContainer - maps and registered containers such as sync.Map,
//     which are rebuilt through their own API.
//
// The tables live in a Registry, which callers can extend or swap without
// touching the engine. DefaultRegistry returns the built-in tables.
package classify
