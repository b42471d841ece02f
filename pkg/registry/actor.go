package registry

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"time"
)

// cmdKind enumerates the mutating operations serialized by the actor.
type cmdKind int

const (
	cmdRegister cmdKind = iota
	cmdDeregister
	cmdLockCore
	cmdRecordFailure
	cmdResetFailures
	cmdRestore
	cmdReset
	cmdStop
	// cmdCrash panics the actor. In-package test hook for the
	// caretaker handoff path.
	cmdCrash
)

func (k cmdKind) String() string {
	switch k {
	case cmdRegister:
		return "register"
	case cmdDeregister:
		return "deregister"
	case cmdLockCore:
		return "lock_core"
	case cmdRecordFailure:
		return "record_failure"
	case cmdResetFailures:
		return "reset_failures"
	case cmdRestore:
		return "restore"
	case cmdReset:
		return "reset"
	case cmdStop:
		return "stop"
	default:
		return "crash"
	}
}

// command is a single serialized mutation request. The caller blocks on
// reply (bounded by the registry call timeout).
type command struct {
	kind     cmdKind
	name     string
	handler  any
	metadata map[string]any
	state    State
	reply    chan error
}

// shared is the supervisor-owned region holding everything readers touch
// without going through the actor: the store cell, the sovereignty flag and
// the snapshot cache. Its lifetime spans actor restarts.
type shared struct {
	store  atomic.Pointer[entryStore]
	locked atomic.Bool
	snap   snapshotCache
}

// State is the opaque payload produced by Snapshot and accepted by Restore.
// Treat it as a black box outside this package; its fields are exported only
// so snapshot stores can persist the serializable parts.
type State struct {
	// Entries is the full entry set at snapshot time.
	Entries []Entry `json:"entries" yaml:"entries"`

	// Locked is the sovereignty flag at snapshot time.
	Locked bool `json:"locked" yaml:"locked"`

	// TakenAt is when the snapshot was taken.
	TakenAt time.Time `json:"taken_at" yaml:"taken_at"`
}

// actor is the single serialization point for all mutations. Exactly one
// actor goroutine runs per registry instance; the supervisor restarts it on
// crash after routing store ownership through the caretaker.
type actor struct {
	shared   *shared
	opts     Options
	commands <-chan command
	log      actorLogger
}

// actorLogger is the slice of the telemetry logger the actor needs.
// Narrowed to an interface so the package tests can run silent.
type actorLogger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// run drains the command channel until stop. A panic while applying a
// command is recovered and surfaced as the crash error the supervisor keys
// its handoff on; the in-flight caller's reply is abandoned and the caller
// times out.
func (a *actor) run() (crashErr error) {
	defer func() {
		if r := recover(); r != nil {
			crashErr = fmt.Errorf("registry actor crashed: %v", r)
		}
	}()

	for cmd := range a.commands {
		if cmd.kind == cmdStop {
			cmd.reply <- nil
			return nil
		}
		if cmd.kind == cmdCrash {
			panic("crash requested")
		}
		cmd.reply <- a.apply(cmd)
	}
	return nil
}

// apply executes one mutation against the shared state.
func (a *actor) apply(cmd command) error {
	store := a.shared.store.Load()

	switch cmd.kind {
	case cmdRegister:
		return a.register(store, cmd.name, cmd.handler, cmd.metadata)
	case cmdDeregister:
		return a.deregister(store, cmd.name)
	case cmdLockCore:
		a.lockCore(store)
		return nil
	case cmdRecordFailure:
		return a.recordFailure(store, cmd.name)
	case cmdResetFailures:
		return a.resetFailures(store, cmd.name)
	case cmdRestore:
		a.restore(store, cmd.state)
		return nil
	case cmdReset:
		store.clear()
		a.shared.locked.Store(false)
		a.shared.snap.invalidate()
		return nil
	default:
		return fmt.Errorf("unknown registry command %d", cmd.kind)
	}
}

// register validates in order: sovereignty, namespace convention,
// no-overwrite, capability interface. The first failing check wins and no
// partial state is committed.
func (a *actor) register(store *entryStore, name string, handler any, metadata map[string]any) error {
	locked := a.shared.locked.Load()
	existing, exists := store.get(name)

	if locked && exists && existing.Core {
		return NewCoreLockedError(name)
	}
	if locked && !namespaced(name) {
		return NewNamespaceRequiredError(name)
	}
	if exists && !a.opts.AllowOverwrite {
		return NewAlreadyRegisteredError(name)
	}
	if a.opts.RequireInterface != nil && !satisfies(handler, a.opts.RequireInterface) {
		return NewMissingBehaviourError(name, a.opts.RequireInterface.String())
	}

	store.put(&Entry{
		Name:         name,
		Handler:      handler,
		Metadata:     metadata,
		RegisteredAt: time.Now(),
	})
	a.republish(store)
	a.log.Debugf("registered handler %q", name)
	return nil
}

func (a *actor) deregister(store *entryStore, name string) error {
	e, ok := store.get(name)
	if !ok {
		return NewNotFoundError(name)
	}
	if a.shared.locked.Load() && e.Core {
		return NewCoreLockedError(name)
	}
	store.delete(name)
	a.republish(store)
	a.log.Debugf("deregistered handler %q", name)
	return nil
}

// lockCore stamps every current entry core and flips the sovereignty flag.
// Idempotent in effect; it is the only operation that mass-mutates Core.
func (a *actor) lockCore(store *entryStore) {
	var names []string
	store.each(func(e *Entry) bool {
		names = append(names, e.Name)
		return true
	})
	for _, name := range names {
		if e, ok := store.get(name); ok && !e.Core {
			c := e.clone()
			c.Core = true
			store.put(c)
		}
	}
	a.shared.locked.Store(true)
	a.shared.snap.publish(buildSnapshot(store))
	a.log.Debugf("registry locked with %d core entries", len(names))
}

// recordFailure bumps the circuit-breaker counter and drops the snapshot
// without rebuilding: a degraded entry must leave the fast path immediately.
func (a *actor) recordFailure(store *entryStore, name string) error {
	e, ok := store.get(name)
	if !ok {
		return NewNotFoundError(name)
	}
	c := e.clone()
	c.FailureCount++
	store.put(c)
	if a.shared.locked.Load() {
		a.shared.snap.invalidate()
	}
	if c.FailureCount >= a.opts.MaxFailures {
		a.log.Warnf("handler %q reached failure threshold (%d)", name, c.FailureCount)
	}
	return nil
}

func (a *actor) resetFailures(store *entryStore, name string) error {
	e, ok := store.get(name)
	if !ok {
		return NewNotFoundError(name)
	}
	c := e.clone()
	c.FailureCount = 0
	store.put(c)
	a.republish(store)
	return nil
}

// restore replaces the whole store with the snapshot's entry set and
// sovereignty flag.
func (a *actor) restore(store *entryStore, state State) {
	store.clear()
	for i := range state.Entries {
		e := state.Entries[i]
		store.put(&e)
	}
	a.shared.locked.Store(state.Locked)
	a.republish(store)
	a.log.Debugf("restored %d entries (locked=%v)", len(state.Entries), state.Locked)
}

// republish rebuilds the snapshot cache wholesale, but only while locked;
// the cache does not exist during bootstrap.
func (a *actor) republish(store *entryStore) {
	if a.shared.locked.Load() {
		a.shared.snap.publish(buildSnapshot(store))
	} else {
		a.shared.snap.invalidate()
	}
}

// satisfies reports whether the handler implements the capability interface.
func satisfies(handler any, iface reflect.Type) bool {
	if handler == nil {
		return false
	}
	return reflect.TypeOf(handler).Implements(iface)
}
