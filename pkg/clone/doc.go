// Package clone implements a reflection-driven deep copy engine.
//
// Every concrete type is classified once (see package classify) and compiled
// into a Strategy that is cached for the life of the Cloner. A copy starts
// with a bitwise duplicate of the root and then lets the root's strategy
// replace every reference that could still reach mutable source state.
//
// # Identity
//
// Each call keeps an identity map from source objects (pointers, maps,
// slices, registered containers, rank-N arrays) to their copies. An object is
// registered as soon as its copy is allocated and before any of its contents
// are processed, so shared references stay shared and cycles terminate:
//
//	type node struct{ next *node }
//	n := &node{}
//	n.next = n
//	c := clone.Clone(n)
//	// c != n && c.next == c
//
// # Stack depth
//
// The contents of reference objects are never processed recursively. They
// are pushed onto an explicit work list, so a linked list of a million nodes
// needs no more Go stack than a list of one.
//
// # Field rules
//
// Struct fields are copied according to their type's category with three
// overrides driven by the deepclone struct tag:
//
//	Lock   sync.Mutex            // ignored type: zeroed
//	OnSave func()                // event field: cleared
//	Cache  *lru `deepclone:"-"`   // zeroed
//	Parent *Doc `deepclone:"shallow"` // aliased
//
// Unexported fields are copied like exported ones.
//
// # Concurrency
//
// A Cloner may be used from many goroutines. Strategy compilation is
// serialized per type; a goroutine waits only when it needs a type another
// goroutine is compiling. The source graph must not be mutated while it is
// being copied.
package clone
