package registry

import "sync/atomic"

// snapshotMap is the immutable name-to-handler map published to readers.
type snapshotMap map[string]any

// snapshotCache is the zero-synchronization read path used once the registry
// is locked. The actor publishes a freshly built immutable map after each
// structural mutation and nils it out on degradation events; readers only
// ever load the pointer.
type snapshotCache struct {
	current atomic.Pointer[snapshotMap]
}

// lookup returns the cached handler for a name, if a snapshot is published.
func (c *snapshotCache) lookup(name string) (any, bool) {
	m := c.current.Load()
	if m == nil {
		return nil, false
	}
	h, ok := (*m)[name]
	return h, ok
}

// active reports whether a snapshot is currently published.
func (c *snapshotCache) active() bool {
	return c.current.Load() != nil
}

// publish atomically swaps in a new immutable snapshot. Actor-only.
func (c *snapshotCache) publish(m snapshotMap) {
	c.current.Store(&m)
}

// invalidate drops the snapshot without rebuilding. Cheap; used when an
// entry degrades and must disappear from the fast path immediately.
func (c *snapshotCache) invalidate() {
	c.current.Store(nil)
}

// buildSnapshot assembles the fast-path map from the store: only entries
// with a zero failure count and loadable backing code qualify.
func buildSnapshot(store *entryStore) snapshotMap {
	m := make(snapshotMap)
	store.each(func(e *Entry) bool {
		if e.FailureCount == 0 && handlerLoaded(e.Handler) {
			m[e.Name] = e.Handler
		}
		return true
	})
	return m
}
