package clone

import (
	"fmt"
	"reflect"

	"github.com/openfroyo/deepclone/pkg/classify"
)

// MultiArray is implemented by rank-N arrays with arbitrary lower bounds.
type MultiArray = classify.MultiArray

func (c *cache) compile(t reflect.Type) *Strategy {
	st := &Strategy{Type: t, Category: classify.Classify(c.registry, t)}

	switch st.Category {
	case classify.Ignored:
		st.Deep = true
		st.lossy = true
		st.fill = fillZero
	case classify.SafeShare, classify.FunctionReference:
		// Aliased as-is.
	case classify.ValueAggregate:
		if t.Kind() == reflect.Struct {
			c.compileStruct(st)
		} else {
			c.compileArray(st)
		}
	case classify.ReferenceAggregate:
		switch t.Kind() {
		case reflect.Pointer:
			c.compilePointer(st)
		case reflect.Interface:
			c.compileInterface(st)
		}
	case classify.Array:
		if t.Kind() == reflect.Slice {
			c.compileSlice(st)
		} else {
			c.compileMultiArray(st)
		}
	case classify.AssociativeContainer:
		if adapter, ok := c.registry.ContainerFor(t); ok {
			c.compileContainer(st, adapter)
		} else {
			c.compileMap(st)
		}
	}
	return st
}

func fillZero(_ *state, v reflect.Value) {
	v.SetZero()
}

// fieldPlan is the per-field work of a struct strategy. A nil strategy means
// the field is zeroed.
type fieldPlan struct {
	name   string
	offset uintptr
	typ    reflect.Type
	s      *Strategy
}

func (c *cache) compileStruct(st *Strategy) {
	t := st.Type
	var plans []fieldPlan

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		plan := fieldPlan{name: f.Name, offset: f.Offset, typ: f.Type}

		switch mode := classify.ModeOf(f); {
		case mode == classify.FieldShallow:
			continue
		case mode == classify.FieldSkip, classify.IsEventField(c.registry, f):
			st.resets = append(st.resets, plan)
			st.Cleared = append(st.Cleared, f.Name)
			plans = append(plans, plan)
			continue
		}

		fs := c.get(f.Type)
		switch {
		case fs.Category == classify.Ignored:
			st.resets = append(st.resets, plan)
			st.Cleared = append(st.Cleared, f.Name)
			plans = append(plans, plan)
		case fs.Deep:
			plan.s = fs
			st.Walked = append(st.Walked, f.Name)
			plans = append(plans, plan)
			st.lossy = st.lossy || fs.lossy
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				for _, r := range fs.resets {
					r.name = f.Name + "." + r.name
					r.offset += f.Offset
					st.resets = append(st.resets, r)
				}
			}
		}
	}

	if len(plans) == 0 {
		return
	}
	st.Deep = true
	st.lossy = st.lossy || len(st.resets) > 0
	st.fill = func(s *state, v reflect.Value) {
		for i := range plans {
			p := &plans[i]
			f := fieldAt(v, p.offset, p.typ)
			if p.s == nil {
				f.SetZero()
				continue
			}
			p.s.fill(s, f)
		}
	}
}

func (c *cache) compileArray(st *Strategy) {
	t := st.Type
	if t.Len() == 0 {
		return
	}
	es := c.get(t.Elem())

	switch {
	case es.Category == classify.Ignored:
		st.Deep = true
		st.lossy = true
		st.fill = fillZero
	case es.Deep:
		st.Deep = true
		st.lossy = es.lossy
		st.fill = func(s *state, v reflect.Value) {
			for i := 0; i < v.Len(); i++ {
				es.fill(s, v.Index(i))
			}
		}
	}
}

func (c *cache) compilePointer(st *Strategy) {
	t := st.Type
	elem := c.lazy(t.Elem())
	size := t.Elem().Size()

	st.Deep = true
	st.fill = func(s *state, v reflect.Value) {
		if v.IsNil() {
			return
		}
		id := pointerIdentity(v)
		if dup, ok := s.lookup(id); ok {
			v.Set(dup)
			return
		}
		if dup, ok := s.interior(id, size, size); ok {
			v.Set(dup)
			return
		}

		es := elem.get()
		dup := reflect.New(t.Elem())
		if es.Category != classify.Ignored {
			dup.Elem().Set(v.Elem())
		}
		s.register(id, dup)
		s.track(id, size, size)
		v.Set(dup)

		if es.Deep && es.Category != classify.Ignored {
			s.push(dup.Elem(), es.fill)
		}
	}
}

// compileInterface resolves the dynamic type at copy time. Value aggregates
// are filled in a temporary by a queued task and boxed by a task queued below
// it, so values nested through interfaces never recurse on the Go stack.
func (c *cache) compileInterface(st *Strategy) {
	st.Deep = true
	st.lossy = true
	st.fill = func(s *state, v reflect.Value) {
		if v.IsNil() {
			return
		}
		d := v.Elem()
		ds := s.cache.get(d.Type())
		switch {
		case ds.Category == classify.Ignored:
			v.SetZero()
			return
		case !ds.Deep:
			return
		}

		tmp := detach(d)
		switch d.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map:
			// Pending work targets the referenced object, not tmp.
			ds.fill(s, tmp)
			v.Set(tmp)
		default:
			s.later(func() { v.Set(tmp) })
			s.push(tmp, ds.fill)
		}
	}
}

func (c *cache) compileSlice(st *Strategy) {
	t := st.Type
	elem := c.lazy(t.Elem())
	elemSize := t.Elem().Size()

	each := func(s *state, v reflect.Value) {
		es := elem.get()
		for i := 0; i < v.Len(); i++ {
			es.fill(s, v.Index(i))
		}
	}

	st.Deep = true
	st.fill = func(s *state, v reflect.Value) {
		// A zero-capacity slice has no element a write could reach.
		if v.IsNil() || v.Cap() == 0 {
			return
		}
		id := sliceIdentity(v)
		if dup, ok := s.lookup(id); ok {
			v.Set(dup)
			return
		}
		size, extent := uintptr(v.Len())*elemSize, uintptr(v.Cap())*elemSize
		if dup, ok := s.interior(id, size, extent); ok {
			v.Set(dup)
			return
		}

		es := elem.get()
		dup := reflect.MakeSlice(t, v.Len(), v.Cap())
		if es.Category != classify.Ignored {
			reflect.Copy(dup, v)
		}
		s.register(id, dup)
		s.track(id, size, extent)
		v.Set(dup)

		if es.Deep && es.Category != classify.Ignored {
			s.push(dup, each)
		}
	}
}

func (c *cache) compileMap(st *Strategy) {
	t := st.Type
	key, elem := c.lazy(t.Key()), c.lazy(t.Elem())

	st.Deep = true
	st.fill = func(s *state, v reflect.Value) {
		if v.IsNil() {
			return
		}
		id := pointerIdentity(v)
		if dup, ok := s.lookup(id); ok {
			v.Set(dup)
			return
		}

		src := detach(v)
		dup := reflect.MakeMapWithSize(t, src.Len())
		s.register(id, dup)
		v.Set(dup)

		if src.Len() > 0 {
			s.later(func() { copyEntries(s, src, dup, key.get(), elem.get()) })
		}
	}
}

// copyEntries inserts deep copies of the entries of src into dst. Keys whose
// copy would zero part of the key are kept as-is; zeroing them would merge
// entries.
func copyEntries(s *state, src, dst reflect.Value, ks, es *Strategy) {
	deepKey := ks.Deep && ks.Category != classify.Ignored
	deepElem := es.Deep

	iter := src.MapRange()
	for iter.Next() {
		if !deepKey && !deepElem {
			dst.SetMapIndex(iter.Key(), iter.Value())
			continue
		}

		k, e := detach(iter.Key()), detach(iter.Value())
		s.later(func() { dst.SetMapIndex(k, e) })
		if deepKey && !lossyKey(s, ks, k) {
			ks.fill(s, k)
		}
		if deepElem {
			es.fill(s, e)
		}
	}
}

// lossyKey reports whether copying the key k with ks would zero part of it.
func lossyKey(s *state, ks *Strategy, k reflect.Value) bool {
	if k.Kind() == reflect.Interface {
		return !k.IsNil() && s.cache.get(k.Elem().Type()).lossy
	}
	return ks.lossy
}

// compileContainer routes a registered container through its adapter. A
// container held by pointer has identity; one held by value is rebuilt in
// place.
func (c *cache) compileContainer(st *Strategy, adapter classify.Container) {
	t := st.Type
	key, elem := c.lazy(adapter.KeyType()), c.lazy(adapter.ElemType())

	st.Deep = true
	if t.Kind() == reflect.Pointer {
		st.fill = func(s *state, v reflect.Value) {
			if v.IsNil() {
				return
			}
			id := pointerIdentity(v)
			if dup, ok := s.lookup(id); ok {
				v.Set(dup)
				return
			}

			src := detach(v)
			dup := adapter.New()
			s.register(id, dup)
			v.Set(dup)
			s.later(func() { rebuild(s, adapter, src, dup, key.get(), elem.get()) })
		}
		return
	}

	st.fill = func(s *state, v reflect.Value) {
		src := reflect.New(t)
		src.Elem().Set(v)
		v.SetZero()
		dup := v.Addr()
		s.later(func() { rebuild(s, adapter, src, dup, key.get(), elem.get()) })
	}
}

func rebuild(s *state, adapter classify.Container, src, dst reflect.Value, ks, es *Strategy) {
	deepKey := ks.Deep && ks.Category != classify.Ignored

	adapter.Range(src, func(key, elem reflect.Value) bool {
		k, e := detach(key), detach(elem)
		s.later(func() { adapter.Store(dst, k, e) })
		if deepKey && !lossyKey(s, ks, k) {
			ks.fill(s, k)
		}
		if es.Deep {
			es.fill(s, e)
		}
		return true
	})
}

// compileMultiArray copies rank-N arrays cell by cell with an index vector
// that starts at each dimension's lower bound.
func (c *cache) compileMultiArray(st *Strategy) {
	t := st.Type

	st.Deep = true
	st.fill = func(s *state, v reflect.Value) {
		if v.IsNil() {
			return
		}
		id := pointerIdentity(v)
		if dup, ok := s.lookup(id); ok {
			v.Set(dup)
			return
		}

		src := v.Interface().(MultiArray)
		like := src.Like()
		dup := reflect.ValueOf(like)
		if !dup.IsValid() || dup.Type() != t {
			panic(NewUnsupportedError(ErrCodeMultiArrayShape,
				fmt.Sprintf("Like returned %T", like)).WithType(classify.QualifiedName(t)))
		}
		s.register(id, dup)
		v.Set(dup)
		s.later(func() { copyCells(s, src, like) })
	}
}

func copyCells(s *state, src, dst MultiArray) {
	rank := src.Rank()
	if rank == 0 {
		return
	}
	lower := make([]int, rank)
	upper := make([]int, rank)
	for d := 0; d < rank; d++ {
		if src.Length(d) == 0 {
			return
		}
		lower[d] = src.LowerBound(d)
		upper[d] = lower[d] + src.Length(d)
	}

	es := s.cache.get(src.ElemType())
	if es.Category == classify.Ignored {
		// Like returns zero-filled cells.
		return
	}

	idx := append([]int(nil), lower...)
	for {
		to := dst.Elem(idx)
		to.Set(src.Elem(idx))
		if es.Deep {
			es.fill(s, to)
		}

		d := rank - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < upper[d] {
				break
			}
			idx[d] = lower[d]
		}
		if d < 0 {
			return
		}
	}
}
