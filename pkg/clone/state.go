package clone

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"unsafe"
)

// identity names one reference object of the source graph. Slices that share
// a backing array but differ in length or capacity are distinct objects.
type identity struct {
	typ reflect.Type
	ptr unsafe.Pointer
	len int
	cap int
}

func pointerIdentity(v reflect.Value) identity {
	return identity{typ: v.Type(), ptr: v.UnsafePointer()}
}

func sliceIdentity(v reflect.Value) identity {
	return identity{typ: v.Type(), ptr: v.UnsafePointer(), len: v.Len(), cap: v.Cap()}
}

// region is the source memory covered by a registered pointer target or
// slice. size spans the copied elements; extent also spans the capacity the
// copy allocates.
type region struct {
	id     identity
	size   uintptr
	extent uintptr
}

func (r region) start() uintptr { return uintptr(r.id.ptr) }

func (r region) end() uintptr { return uintptr(r.id.ptr) + r.size }

// task is one entry of the work list. Either fill is applied to to, or run is
// called. Tasks that box or insert a finished value are pushed below the tasks
// that finish it, so the LIFO order runs them last.
type task struct {
	to   reflect.Value
	fill fillFunc
	run  func()
}

// state is the per-call traversal state: the identity map from source objects
// to their copies and the work list. It is never shared between calls.
type state struct {
	cache *cache
	seen  map[identity]reflect.Value
	work  []task

	// regions collects the memory of every pointer target and backing array
	// copied. outer holds, for a second pass, the regions not nested in
	// another one, sorted by address.
	regions []region
	outer   []region

	objects int
	tasks   int
}

var statePool = sync.Pool{
	New: func() any {
		return &state{seen: make(map[identity]reflect.Value)}
	},
}

func newState(c *cache) *state {
	s := statePool.Get().(*state)
	s.cache = c
	return s
}

func (s *state) release() {
	// Very large maps are not worth keeping around.
	if len(s.seen) > 1<<12 {
		s.seen = make(map[identity]reflect.Value)
	} else {
		clear(s.seen)
	}
	clear(s.work)
	s.work = s.work[:0]
	clear(s.regions)
	s.regions = s.regions[:0]
	s.outer = nil
	s.cache = nil
	s.objects, s.tasks = 0, 0
	statePool.Put(s)
}

// register records the copy of a source object. Each object is registered
// exactly once per call, before any of its contents are processed.
func (s *state) register(id identity, dup reflect.Value) {
	if _, ok := s.seen[id]; ok {
		panic(fmt.Sprintf("clone: %s registered twice", id.typ))
	}
	s.seen[id] = dup
	s.objects++
}

// lookup returns the copy registered for a source object.
func (s *state) lookup(id identity) (reflect.Value, bool) {
	v, ok := s.seen[id]
	return v, ok
}

// track records the source memory a registered object covers. Zero-size
// objects may share an address and are never tracked.
func (s *state) track(id identity, size, extent uintptr) {
	if size == 0 {
		return
	}
	s.regions = append(s.regions, region{id: id, size: size, extent: extent})
}

// nested reports whether a tracked object lies inside another one, as a
// pointer to a slice element or struct field does. Such objects were copied
// on their own and need the second pass.
func (s *state) nested() bool {
	if len(s.regions) < 2 {
		return false
	}
	sortRegions(s.regions)
	var end uintptr
	for _, r := range s.regions {
		if r.start() < end {
			return true
		}
		end = max(end, r.end())
	}
	return false
}

// restart prepares the second pass: it forgets every copy and keeps the
// outermost regions so that nested objects resolve into their containers.
func (s *state) restart() {
	sortRegions(s.regions)
	outer := make([]region, 0, len(s.regions))
	var end uintptr
	for _, r := range s.regions {
		if r.start() < end && r.end() <= end {
			continue
		}
		outer = append(outer, r)
		end = max(end, r.end())
	}

	clear(s.seen)
	clear(s.regions)
	s.regions = s.regions[:0]
	s.outer = outer
	s.objects, s.tasks = 0, 0
}

// sortRegions orders regions by address, larger first at the same address.
// The sort is stable so ties keep registration order.
func sortRegions(rs []region) {
	slices.SortStableFunc(rs, func(a, b region) int {
		if c := cmp.Compare(a.start(), b.start()); c != 0 {
			return c
		}
		return cmp.Compare(b.end(), a.end())
	})
}

// interior resolves an object that lies inside an outer region, returning a
// view into the copy of that region. The container is copied first when the
// traversal has not reached it yet. It only answers during a second pass.
func (s *state) interior(id identity, size, extent uintptr) (reflect.Value, bool) {
	if len(s.outer) == 0 || size == 0 {
		return reflect.Value{}, false
	}
	start := uintptr(id.ptr)
	i, found := slices.BinarySearchFunc(s.outer, start, func(r region, addr uintptr) int {
		return cmp.Compare(r.start(), addr)
	})
	if !found {
		if i == 0 {
			return reflect.Value{}, false
		}
		i--
	}
	r := s.outer[i]
	if r.id == id || start+size > r.end() || start+extent > r.start()+r.extent {
		return reflect.Value{}, false
	}

	base, ok := s.lookup(r.id)
	if !ok {
		base = s.materialize(r.id)
	}
	p := unsafe.Add(base.UnsafePointer(), start-r.start())

	var dup reflect.Value
	if id.typ.Kind() == reflect.Pointer {
		dup = reflect.NewAt(id.typ.Elem(), p)
	} else {
		dup = reflect.SliceAt(id.typ.Elem(), p, id.cap).Slice(0, id.len)
	}
	s.seen[id] = dup
	return dup, true
}

// materialize copies the source object named by id ahead of the traversal.
func (s *state) materialize(id identity) reflect.Value {
	var src reflect.Value
	if id.typ.Kind() == reflect.Pointer {
		src = reflect.NewAt(id.typ.Elem(), id.ptr)
	} else {
		src = reflect.SliceAt(id.typ.Elem(), id.ptr, id.cap).Slice(0, id.len)
	}
	slot := reflect.New(id.typ).Elem()
	slot.Set(src)
	s.cache.get(id.typ).fill(s, slot)
	return slot
}

// run fills out, which holds a bitwise copy of in, and drains the work list.
// When objects turned out to lie inside other objects, the copy is redone so
// that they resolve to the matching place in their container's copy. setup
// registers objects known before the traversal starts.
func (s *state) run(st *Strategy, out, in reflect.Value, setup func()) {
	if setup != nil {
		setup()
	}
	st.fill(s, out)
	s.drain()
	if !s.nested() {
		return
	}

	s.restart()
	out.Set(in)
	if setup != nil {
		setup()
	}
	st.fill(s, out)
	s.drain()
}

func (s *state) push(to reflect.Value, fill fillFunc) {
	s.work = append(s.work, task{to: to, fill: fill})
}

func (s *state) later(run func()) {
	s.work = append(s.work, task{run: run})
}

// drain processes the work list until it is empty.
func (s *state) drain() {
	for len(s.work) > 0 {
		n := len(s.work) - 1
		t := s.work[n]
		s.work[n] = task{}
		s.work = s.work[:n]
		s.tasks++

		if t.run != nil {
			t.run()
			continue
		}
		t.fill(s, t.to)
	}
}
