package classify

import (
	"reflect"
	"sync"
)

// Resolver is an external classification source, such as a policy engine.
// Only Ignored and SafeShare answers are honored; anything else is treated
// as "no opinion".
type Resolver interface {
	Resolve(info TypeInfo) (Category, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(info TypeInfo) (Category, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(info TypeInfo) (Category, bool) {
	return f(info)
}

// Registry holds the classification tables the engine consults. It is safe
// for concurrent use. Engines cache compiled strategies, so changes made
// after a registry has been handed to an engine only take effect once the
// engine's cache is reset.
type Registry struct {
	mu sync.RWMutex

	ignored      map[reflect.Type]struct{}
	safe         map[reflect.Type]struct{}
	ignoredNames map[string]struct{}
	safeNames    map[string]struct{}
	containers   map[reflect.Type]Container
	resolvers    []Resolver

	eventConvention bool
}

// NewRegistry returns an empty registry with the listener naming convention
// enabled.
func NewRegistry() *Registry {
	return &Registry{
		ignored:         make(map[reflect.Type]struct{}),
		safe:            make(map[reflect.Type]struct{}),
		ignoredNames:    make(map[string]struct{}),
		safeNames:       make(map[string]struct{}),
		containers:      make(map[reflect.Type]Container),
		eventConvention: true,
	}
}

// Ignore adds types to the ignore table.
func (r *Registry) Ignore(types ...reflect.Type) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.ignored[t] = struct{}{}
	}
	return r
}

// Share adds types to the safe-share table.
func (r *Registry) Share(types ...reflect.Type) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.safe[t] = struct{}{}
	}
	return r
}

// IgnoreName adds qualified type names (see QualifiedName) to the ignore table.
func (r *Registry) IgnoreName(names ...string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.ignoredNames[n] = struct{}{}
	}
	return r
}

// ShareName adds qualified type names to the safe-share table.
func (r *Registry) ShareName(names ...string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.safeNames[n] = struct{}{}
	}
	return r
}

// RegisterContainer routes t, and pointers to t, through c instead of the
// generic field walker.
func (r *Registry) RegisterContainer(t reflect.Type, c Container) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[t] = c
	return r
}

// AddResolver appends an external classification source. Resolvers are
// consulted after the tables.
func (r *Registry) AddResolver(res Resolver) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = append(r.resolvers, res)
	return r
}

// SetEventConvention toggles name-based event field detection. Fields tagged
// deepclone:"event" are cleared either way.
func (r *Registry) SetEventConvention(enabled bool) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventConvention = enabled
	return r
}

// EventConvention reports whether name-based event detection is enabled.
func (r *Registry) EventConvention() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventConvention
}

// IsIgnored reports whether t, or the type t points to, is in the ignore
// table or resolved as Ignored.
func (r *Registry) IsIgnored(t reflect.Type) bool {
	if r.matches(t, Ignored) {
		return true
	}
	if t.Kind() == reflect.Pointer {
		return r.matches(t.Elem(), Ignored)
	}
	return false
}

// IsSafe reports whether t itself is declared safe to share. Pointers to safe
// value types are not safe: writes through them would leak into the original.
func (r *Registry) IsSafe(t reflect.Type) bool {
	return r.matches(t, SafeShare)
}

// ContainerFor returns the container adapter registered for t or for the type
// t points to.
func (r *Registry) ContainerFor(t reflect.Type) (Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.containers[t]; ok {
		return c, true
	}
	if t.Kind() == reflect.Pointer {
		c, ok := r.containers[t.Elem()]
		return c, ok
	}
	return nil, false
}

// Clone returns an independent copy of the registry, used to derive a new
// registry for a hot swap without disturbing the one in use.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry()
	for t := range r.ignored {
		out.ignored[t] = struct{}{}
	}
	for t := range r.safe {
		out.safe[t] = struct{}{}
	}
	for n := range r.ignoredNames {
		out.ignoredNames[n] = struct{}{}
	}
	for n := range r.safeNames {
		out.safeNames[n] = struct{}{}
	}
	for t, c := range r.containers {
		out.containers[t] = c
	}
	out.resolvers = append(out.resolvers, r.resolvers...)
	out.eventConvention = r.eventConvention
	return out
}

func (r *Registry) matches(t reflect.Type, want Category) bool {
	r.mu.RLock()
	types, names := r.ignored, r.ignoredNames
	if want == SafeShare {
		types, names = r.safe, r.safeNames
	}
	if _, ok := types[t]; ok {
		r.mu.RUnlock()
		return true
	}
	if _, ok := names[QualifiedName(t)]; ok {
		r.mu.RUnlock()
		return true
	}
	resolvers := r.resolvers
	r.mu.RUnlock()

	if len(resolvers) == 0 {
		return false
	}
	info := Describe(t)
	for _, res := range resolvers {
		if c, ok := res.Resolve(info); ok && c == want {
			return true
		}
	}
	return false
}
