package registry

import (
	"sort"
	"sync"
)

// entryStore is the concurrent name-to-entry table. Readers access it
// directly without locks; all writes go through the registry actor, which
// replaces entries copy-on-write so a reader never observes a half-mutated
// entry.
//
// The store deliberately lives in a supervisor-owned cell rather than the
// actor goroutine's private state, so its lifetime is decoupled from the
// actor's (see caretaker.go).
type entryStore struct {
	entries sync.Map // string -> *Entry
}

func newEntryStore() *entryStore {
	return &entryStore{}
}

// get returns the published entry for a name.
func (s *entryStore) get(name string) (*Entry, bool) {
	v, ok := s.entries.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// put publishes an entry. Actor-only.
func (s *entryStore) put(e *Entry) {
	s.entries.Store(e.Name, e)
}

// delete removes an entry. Actor-only.
func (s *entryStore) delete(name string) {
	s.entries.Delete(name)
}

// all returns a point-in-time copy of every entry, sorted by name.
func (s *entryStore) all() []Entry {
	var out []Entry
	s.entries.Range(func(_, v any) bool {
		out = append(out, *v.(*Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// each visits every published entry.
func (s *entryStore) each(fn func(e *Entry) bool) {
	s.entries.Range(func(_, v any) bool {
		return fn(v.(*Entry))
	})
}

// clear removes every entry. Actor-only; used by Reset and Restore.
func (s *entryStore) clear() {
	s.entries.Range(func(k, _ any) bool {
		s.entries.Delete(k)
		return true
	})
}

// size returns the current number of entries.
func (s *entryStore) size() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
