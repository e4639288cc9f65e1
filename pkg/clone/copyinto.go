package clone

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/openfroyo/deepclone/pkg/classify"
)

// CopyInto copies src onto the existing value dst points to. src may be a T
// or a *T; dst must be a non-nil *T, or a pointer to an interface type that T
// implements. Nothing is written unless every argument check passes.
//
// A shallow copy duplicates the top-level fields as-is, except that ignored
// fields are zeroed and event fields cleared. A deep copy also copies
// everything reachable; references back to src resolve to dst.
func (c *Cloner) CopyInto(src, dst any, deep bool) (err error) {
	mode := "shallow"
	if deep {
		mode = "deep"
	}
	defer func() {
		status := "ok"
		var ce *CloneError
		if errors.As(err, &ce) {
			status = ce.Code
			c.metrics.RecordError(string(ce.Class), ce.Code)
			c.logger.Debug().Err(err).Str("mode", mode).Msg("CopyInto rejected")
		}
		c.metrics.RecordCopyInto(mode, status)
	}()

	root, rootPtr, target, err := checkCopyInto(src, dst)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*CloneError)
			if !ok {
				panic(r)
			}
			err = ce
		}
	}()

	if target.Kind() == reflect.Interface && root.Type() != target.Type() {
		if deep {
			target.Set(c.CloneReflect(root))
		} else {
			target.Set(root)
		}
		return nil
	}

	cache := c.cache.Load()
	st := cache.get(root.Type())
	if st.Category == classify.Ignored {
		target.SetZero()
		return nil
	}

	first := detach(root)
	target.Set(first)
	if !deep {
		for _, p := range st.resets {
			fieldAt(target, p.offset, p.typ).SetZero()
		}
		return nil
	}
	if !st.Deep {
		return nil
	}

	s := newState(cache)
	defer s.release()
	s.run(st, target, first, func() {
		if rootPtr.IsValid() {
			id := pointerIdentity(rootPtr)
			s.register(id, target.Addr())
			s.track(id, root.Type().Size(), root.Type().Size())
		}
	})
	return nil
}

// checkCopyInto validates the CopyInto arguments. It returns the source value,
// the source pointer when src was passed by pointer, and the settable target.
func checkCopyInto(src, dst any) (root, rootPtr, target reflect.Value, err error) {
	if src == nil {
		return root, rootPtr, target, ErrNilSource
	}
	root = reflect.ValueOf(src)
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			return root, rootPtr, target, ErrNilSource
		}
	}
	if root.Kind() == reflect.String ||
		(root.Kind() == reflect.Pointer && root.Elem().Kind() == reflect.String) {
		return root, rootPtr, target, ErrStringSource
	}

	if dst == nil {
		return root, rootPtr, target, ErrNilDestination
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer {
		return root, rootPtr, target, NewInvalidArgumentError(ErrCodeNotPointer,
			fmt.Sprintf("destination is a %s, not a pointer", dv.Type())).
			WithType(classify.QualifiedName(dv.Type()))
	}
	if dv.IsNil() {
		return root, rootPtr, target, ErrNilDestination
	}
	target = dv.Elem()
	want := target.Type()

	switch {
	case root.Type() == want:
	case root.Kind() == reflect.Pointer && root.Elem().Type() == want:
		rootPtr = root
		root = root.Elem()
	case want.Kind() == reflect.Interface && root.Type().Implements(want):
	default:
		return root, rootPtr, target, NewInvalidArgumentError(ErrCodeTypeMismatch,
			fmt.Sprintf("cannot copy %s into %s", root.Type(), want)).
			WithType(classify.QualifiedName(root.Type()))
	}
	return root, rootPtr, target, nil
}
