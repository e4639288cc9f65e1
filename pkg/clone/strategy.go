package clone

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/rs/zerolog"
)

// fillFunc turns v, which holds a bitwise copy of a source value, into a deep
// copy. It may finish immediately or push tasks onto the work list. v is
// always addressable and settable.
type fillFunc func(s *state, v reflect.Value)

// Strategy is the compiled copy routine for one concrete type. Strategies are
// immutable once built and shared by every call that copies the type.
type Strategy struct {
	// Type is the concrete type the strategy copies.
	Type reflect.Type

	// Category is the classification the strategy was compiled from.
	Category classify.Category

	// Deep is false when a bitwise copy of a value is already a deep copy.
	Deep bool

	// Walked and Cleared name the struct fields that are deep-copied and
	// zeroed respectively. Both are empty for non-struct types.
	Walked  []string
	Cleared []string

	fill fillFunc

	// resets are the fields a shallow copy zeroes, including those promoted
	// from embedded structs.
	resets []fieldPlan

	// lossy is set when fill zeroes part of the value itself rather than
	// something it references.
	lossy bool
}

// cache is the process-wide strategy cache for one registry. Each type is
// compiled at most once; concurrent first users of a type wait on that type
// only.
type cache struct {
	registry *classify.Registry
	entries  sync.Map // reflect.Type -> *cacheEntry
	size     atomic.Int64

	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

type cacheEntry struct {
	once sync.Once
	s    atomic.Pointer[Strategy]
}

func newCache(r *classify.Registry, logger zerolog.Logger, metrics *telemetry.Metrics) *cache {
	return &cache{
		registry: r,
		logger:   logger,
		metrics:  metrics,
	}
}

// get returns the strategy for t, compiling it on first use.
func (c *cache) get(t reflect.Type) *Strategy {
	e, ok := c.entries.Load(t)
	if !ok {
		e, _ = c.entries.LoadOrStore(t, &cacheEntry{})
	}
	entry := e.(*cacheEntry)
	if s := entry.s.Load(); s != nil {
		return s
	}
	entry.once.Do(func() {
		s := c.compile(t)
		entry.s.Store(s)
		n := c.size.Add(1)

		c.logger.Debug().
			Str("type", t.String()).
			Str("category", s.Category.String()).
			Bool("deep", s.Deep).
			Int64("cache_size", n).
			Msg("Compiled copy strategy")
		c.metrics.RecordStrategyCompiled(s.Category.String(), int(n))
	})
	return entry.s.Load()
}

func (c *cache) len() int {
	return int(c.size.Load())
}

// all returns the compiled strategies ordered by type name.
func (c *cache) all() []*Strategy {
	var out []*Strategy
	c.entries.Range(func(_, e any) bool {
		if s := e.(*cacheEntry).s.Load(); s != nil {
			out = append(out, s)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type.String() < out[j].Type.String()
	})
	return out
}

// lazy defers the lookup of an element strategy to first use. Pointer, slice,
// map and container strategies resolve their element types lazily, which
// keeps the compilation of recursive types finite.
type lazy struct {
	c *cache
	t reflect.Type
	s atomic.Pointer[Strategy]
}

func (c *cache) lazy(t reflect.Type) *lazy {
	return &lazy{c: c, t: t}
}

func (l *lazy) get() *Strategy {
	if s := l.s.Load(); s != nil {
		return s
	}
	s := l.c.get(l.t)
	l.s.Store(s)
	return s
}
