package clone

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/openfroyo/deepclone/pkg/classify"
	"github.com/openfroyo/deepclone/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Cloner deep-copies arbitrary values. It is safe for concurrent use; every
// call gets its own traversal state while strategies are shared.
type Cloner struct {
	cache   atomic.Pointer[cache]
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Cloner.
type Option func(*options)

type options struct {
	registry *classify.Registry
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// WithRegistry sets the classification registry. The default is
// classify.DefaultRegistry().
func WithRegistry(r *classify.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the logger used for strategy compilation and CopyInto
// rejections.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates a Cloner.
func New(opts ...Option) *Cloner {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = classify.DefaultRegistry()
	}

	c := &Cloner{
		logger:  o.logger.With().Str("component", "clone").Logger(),
		metrics: o.metrics,
	}
	c.cache.Store(newCache(o.registry, c.logger, c.metrics))
	return c
}

var defaultCloner = sync.OnceValue(func() *Cloner { return New() })

// Default returns the process-wide Cloner used by the package-level functions.
func Default() *Cloner {
	return defaultCloner()
}

// Stats describes one copy.
type Stats struct {
	// Objects is the number of reference objects allocated.
	Objects int `json:"objects"`

	// WorkItems is the number of work list entries processed.
	WorkItems int `json:"work_items"`
}

// Clone returns a deep copy of src. Nil and ignored roots yield nil.
func (c *Cloner) Clone(src any) any {
	out, _ := c.CloneStats(src)
	return out
}

// CloneStats is Clone, also reporting what the copy did.
func (c *Cloner) CloneStats(src any) (any, Stats) {
	if src == nil {
		return nil, Stats{}
	}
	in := reflect.ValueOf(src)
	out := reflect.New(in.Type()).Elem()
	st, stats := c.copy(out, in)
	if st.Category == classify.Ignored {
		return nil, stats
	}
	return out.Interface(), stats
}

// CloneReflect deep-copies v into a new addressable value of the same type.
func (c *Cloner) CloneReflect(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	out := reflect.New(v.Type()).Elem()
	c.copy(out, v)
	return out
}

// copy writes a deep copy of in into the zero value out.
func (c *Cloner) copy(out, in reflect.Value) (*Strategy, Stats) {
	cache := c.cache.Load()
	st := cache.get(in.Type())

	timer := telemetry.NewTimer()
	c.metrics.CloneStarted()

	var stats Stats
	defer func() {
		c.metrics.RecordClone(st.Category.String(), stats.Objects, timer.Duration())
	}()

	if st.Category != classify.Ignored {
		out.Set(in)
		if st.Deep {
			s := newState(cache)
			defer s.release()
			s.run(st, out, in, nil)
			stats = Stats{Objects: s.objects, WorkItems: s.tasks}
		}
	}
	return st, stats
}

// Strategy returns the compiled strategy for t.
func (c *Cloner) Strategy(t reflect.Type) *Strategy {
	return c.cache.Load().get(t)
}

// Registry returns the registry strategies are currently compiled against.
func (c *Cloner) Registry() *classify.Registry {
	return c.cache.Load().registry
}

// SetRegistry swaps the classification registry. Calls already running finish
// with the strategies they started with.
func (c *Cloner) SetRegistry(r *classify.Registry) {
	if r == nil {
		r = classify.DefaultRegistry()
	}
	c.cache.Store(newCache(r, c.logger, c.metrics))
	c.metrics.SetStrategyCacheSize(0)
	c.logger.Info().Msg("Classification registry replaced")
}

// Reset drops every cached strategy, so changes made to the current registry
// take effect.
func (c *Cloner) Reset() {
	c.SetRegistry(c.Registry())
}

// CacheSize returns the number of compiled strategies.
func (c *Cloner) CacheSize() int {
	return c.cache.Load().len()
}

// Strategies returns every strategy compiled so far, ordered by type name.
func (c *Cloner) Strategies() []*Strategy {
	return c.cache.Load().all()
}

// Clone returns a deep copy of v using the default Cloner.
func Clone[T any](v T) T {
	return CloneWith(Default(), v)
}

// CloneValue copies a value-typed root. The root has no identity of its own;
// references reached from it are copied exactly as Clone copies them.
func CloneValue[T any](v T) T {
	return CloneWith(Default(), v)
}

// CloneWith returns a deep copy of v using c. When T is an interface type the
// copy is driven by the dynamic type, and an ignored dynamic type yields nil.
func CloneWith[T any](c *Cloner, v T) T {
	var out T
	c.copy(reflect.ValueOf(&out).Elem(), reflect.ValueOf(&v).Elem())
	return out
}

// CopyInto copies src onto the existing value dst points to, using the
// default Cloner.
func CopyInto(src, dst any, deep bool) error {
	return Default().CopyInto(src, dst, deep)
}
