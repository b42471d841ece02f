package registry

import (
	"context"
	"strings"
	"time"
)

// NamespaceSeparator is the character a plugin name must contain once the
// registry is locked, so plugins cannot shadow flat core names.
const NamespaceSeparator = "."

// Entry is a single named handler registration.
type Entry struct {
	// Name is the globally unique key within one registry instance.
	// It is immutable once created.
	Name string `json:"name" yaml:"name"`

	// Handler is the opaque executable reference dispatched to by callers.
	// The registry never interprets it beyond the optional interfaces below.
	// Handlers are process-local and are not serialized with the entry.
	Handler any `json:"-" yaml:"-"`

	// Metadata is an open key-value bag describing the handler's
	// capabilities. The registry stores it verbatim.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// FailureCount is the circuit-breaker counter. It only increases via
	// RecordFailure or resets to zero via ResetFailures.
	FailureCount int `json:"failure_count" yaml:"failure_count"`

	// Core marks an entry frozen by the sovereignty lock. The flag only
	// transitions false to true, at lock time, and never reverses.
	Core bool `json:"core" yaml:"core"`

	// RegisteredAt tracks when the entry was created.
	RegisteredAt time.Time `json:"registered_at" yaml:"registered_at"`
}

// clone returns a shallow copy so the actor can mutate copy-on-write while
// concurrent readers keep a consistent view of the published entry.
func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

// Loadable is optionally implemented by handlers whose backing code can be
// absent at resolution time. A handler reporting false resolves to
// module_not_loaded.
type Loadable interface {
	Loaded() bool
}

// AvailabilityProbe is optionally implemented by handlers that want a say in
// ListAvailable. A panicking probe counts as unavailable and is never
// propagated to the caller.
type AvailabilityProbe interface {
	Available() bool
}

// Invoker is the generic invocation primitive used for cross-node calls: a
// handler reachable through CallRemote must accept a function name and an
// argument bag.
type Invoker interface {
	Invoke(ctx context.Context, function string, args map[string]any) (any, error)
}

// handlerLoaded reports whether the handler's backing code is present.
func handlerLoaded(h any) bool {
	if h == nil {
		return false
	}
	if l, ok := h.(Loadable); ok {
		return l.Loaded()
	}
	return true
}

// handlerAvailable runs the optional availability probe. Any panic during the
// probe is treated as unavailable.
func handlerAvailable(h any) (available bool) {
	p, ok := h.(AvailabilityProbe)
	if !ok {
		return true
	}
	defer func() {
		if recover() != nil {
			available = false
		}
	}()
	return p.Available()
}

// namespaced reports whether a name satisfies the post-lock plugin naming
// convention.
func namespaced(name string) bool {
	return strings.Contains(name, NamespaceSeparator)
}
