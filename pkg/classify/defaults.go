package classify

import (
	"context"
	"net/netip"
	"os"
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultIgnored lists the types that cannot be meaningfully copied: lock and
// coordination state, and OS handles.
var DefaultIgnored = []reflect.Type{
	reflect.TypeFor[sync.Mutex](),
	reflect.TypeFor[sync.RWMutex](),
	reflect.TypeFor[sync.WaitGroup](),
	reflect.TypeFor[sync.Once](),
	reflect.TypeFor[sync.Cond](),
	reflect.TypeFor[sync.Pool](),
	reflect.TypeFor[os.File](),
	reflect.TypeFor[os.Process](),
}

// DefaultSafe lists immutable types, or types that are meant to be shared.
var DefaultSafe = []reflect.Type{
	reflect.TypeFor[time.Time](),
	reflect.TypeFor[*time.Location](),
	reflect.TypeFor[*regexp.Regexp](),
	reflect.TypeFor[netip.Addr](),
	reflect.TypeFor[netip.Prefix](),
	reflect.TypeFor[netip.AddrPort](),
	reflect.TypeFor[uuid.UUID](),
	reflect.TypeFor[reflect.Type](),
	reflect.TypeFor[context.Context](),
	reflect.TypeFor[zerolog.Logger](),
	reflect.TypeFor[*zerolog.Logger](),
}

// DefaultRegistry returns a new registry holding the built-in tables and the
// sync.Map container adapter.
func DefaultRegistry() *Registry {
	return NewRegistry().
		Ignore(DefaultIgnored...).
		Share(DefaultSafe...).
		RegisterContainer(reflect.TypeFor[sync.Map](), SyncMap{})
}
