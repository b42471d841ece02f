package registry

import (
	"context"
	"reflect"
	"time"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
)

const (
	// DefaultMaxFailures is the circuit-breaker threshold.
	DefaultMaxFailures = 5

	// DefaultCallTimeout bounds synchronous actor calls so callers never
	// lock up on an unresponsive actor.
	DefaultCallTimeout = 5 * time.Second

	// DefaultCaretakerHold bounds how long the caretaker keeps the store
	// alive while waiting for a restarted actor.
	DefaultCaretakerHold = 60 * time.Second
)

// Options configures a registry instance.
type Options struct {
	// Name identifies the instance in logs. Multiple independent
	// registries may coexist in one process.
	Name string

	// MaxFailures is the circuit-breaker threshold for ResolveStable and
	// ListAvailable. Defaults to DefaultMaxFailures.
	MaxFailures int

	// AllowOverwrite permits re-registering an existing non-core name.
	AllowOverwrite bool

	// RequireInterface, when set, is a capability interface every handler
	// must implement. Checked once at registration, e.g.
	// reflect.TypeOf((*myiface)(nil)).Elem().
	RequireInterface reflect.Type

	// CallTimeout bounds every synchronous actor call.
	CallTimeout time.Duration

	// CaretakerHold bounds the crash-handoff window.
	CaretakerHold time.Duration

	// Logger receives registry lifecycle logs. Optional.
	Logger *telemetry.Logger

	// Metrics receives registry metrics. Optional.
	Metrics *telemetry.Metrics
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "default"
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = DefaultMaxFailures
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.CaretakerHold <= 0 {
		o.CaretakerHold = DefaultCaretakerHold
	}
	return o
}

// Remote is the cross-node leg of resolution, wired in by the cluster
// package. The registry works purely locally without one.
type Remote interface {
	// Resolve resolves a name on the given node ("any" enumerates peers).
	Resolve(ctx context.Context, name, node string) (any, error)

	// Call invokes function(args) on the handler resolved on node.
	Call(ctx context.Context, name, node, function string, args map[string]any) (any, error)
}

// NodeSelector picks where a resolution may happen.
type NodeSelector string

const (
	// NodeLocal restricts resolution to this instance.
	NodeLocal NodeSelector = "local"

	// NodeAny tries locally first, then every authorized peer in turn.
	NodeAny NodeSelector = "any"
)

// Registry is the distributed handler registry: a concurrent entry store
// mutated only by a single actor goroutine, read lock-free by everyone
// else, with sovereignty locking, a per-entry circuit breaker and an
// optional cross-node resolution leg.
type Registry struct {
	opts     Options
	shared   *shared
	commands chan command
	exited   chan struct{}
	remote   Remote
	log      actorLogger
	metrics  *telemetry.Metrics
}

// nopLogger keeps the actor silent when no telemetry logger is wired.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// New creates a registry and starts its supervision tree.
func New(opts Options) *Registry {
	opts = opts.withDefaults()

	var log actorLogger = nopLogger{}
	if opts.Logger != nil {
		log = opts.Logger.WithRegistry(opts.Name)
	}

	r := &Registry{
		opts:     opts,
		shared:   &shared{},
		commands: make(chan command, 128),
		exited:   make(chan struct{}),
		log:      log,
		metrics:  opts.Metrics,
	}
	// The store cell must be populated before the first read can race the
	// supervisor's startup.
	r.shared.store.Store(newEntryStore())

	sup := &supervisor{
		shared:   r.shared,
		opts:     opts,
		commands: r.commands,
		log:      log,
		exited:   r.exited,
	}
	go sup.run()
	return r
}

// SetRemote attaches the cross-node resolution leg. Call before serving
// traffic; typically done once at daemon startup.
func (r *Registry) SetRemote(rem Remote) {
	r.remote = rem
}

// call routes one mutation through the actor and waits for its reply.
func (r *Registry) call(cmd command) error {
	cmd.reply = make(chan error, 1)

	select {
	case r.commands <- cmd:
	case <-time.After(r.opts.CallTimeout):
		return NewCallTimeoutError(cmd.kind.String())
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-time.After(r.opts.CallTimeout):
		return NewCallTimeoutError(cmd.kind.String())
	}
}

// Register adds a named handler. Validation order: sovereignty, namespace
// convention (post-lock), no-overwrite, capability interface.
func (r *Registry) Register(name string, handler any, metadata map[string]any) error {
	err := r.call(command{kind: cmdRegister, name: name, handler: handler, metadata: metadata})
	r.metrics.RecordRegistration(outcome(err))
	return err
}

// Deregister removes an entry. Forbidden for core entries once locked.
func (r *Registry) Deregister(name string) error {
	return r.call(command{kind: cmdDeregister, name: name})
}

// LockCore stamps every current entry core and enters locked mode: the
// bootstrap-to-runtime sovereignty transition.
func (r *Registry) LockCore() error {
	return r.call(command{kind: cmdLockCore})
}

// CoreLocked reports whether the sovereignty lock is in effect.
func (r *Registry) CoreLocked() bool {
	return r.shared.locked.Load()
}

// RecordFailure increments an entry's circuit-breaker counter and evicts it
// from the snapshot fast path.
func (r *Registry) RecordFailure(name string) error {
	err := r.call(command{kind: cmdRecordFailure, name: name})
	if err == nil {
		r.metrics.RecordFailureReport()
	}
	return err
}

// ResetFailures sets an entry's failure counter back to zero.
func (r *Registry) ResetFailures(name string) error {
	return r.call(command{kind: cmdResetFailures, name: name})
}

// Reset wipes the registry completely. Test-only.
func (r *Registry) Reset() error {
	return r.call(command{kind: cmdReset})
}

// Snapshot captures the full registry state as an opaque value suitable for
// a later Restore.
func (r *Registry) Snapshot() State {
	return State{
		Entries: r.shared.store.Load().all(),
		Locked:  r.shared.locked.Load(),
		TakenAt: time.Now(),
	}
}

// Restore replaces the registry state with a previously taken snapshot.
func (r *Registry) Restore(state State) error {
	return r.call(command{kind: cmdRestore, state: state})
}

// Resolve returns the handler registered under name. The snapshot cache is
// consulted first; a miss falls through to a direct store read.
func (r *Registry) Resolve(name string) (any, error) {
	if h, ok := r.shared.snap.lookup(name); ok {
		r.metrics.RecordResolution("snapshot", "hit")
		return h, nil
	}

	e, ok := r.shared.store.Load().get(name)
	if !ok {
		r.metrics.RecordResolution("store", "miss")
		return nil, NewNotFoundError(name)
	}
	if !handlerLoaded(e.Handler) {
		r.metrics.RecordResolution("store", "unloaded")
		return nil, NewModuleNotLoadedError(name)
	}
	r.metrics.RecordResolution("store", "hit")
	return e.Handler, nil
}

// ResolveStable is Resolve plus the circuit breaker: entries at or past the
// failure threshold resolve to unstable.
func (r *Registry) ResolveStable(name string) (any, error) {
	if h, ok := r.shared.snap.lookup(name); ok {
		// The snapshot only ever contains zero-failure entries.
		r.metrics.RecordResolution("snapshot", "hit")
		return h, nil
	}

	e, ok := r.shared.store.Load().get(name)
	if !ok {
		return nil, NewNotFoundError(name)
	}
	if e.FailureCount >= r.opts.MaxFailures {
		r.metrics.RecordCircuitOpen()
		return nil, NewUnstableError(name)
	}
	if !handlerLoaded(e.Handler) {
		return nil, NewModuleNotLoadedError(name)
	}
	return e.Handler, nil
}

// ResolveEntry returns a copy of the full entry record.
func (r *Registry) ResolveEntry(name string) (Entry, error) {
	e, ok := r.shared.store.Load().get(name)
	if !ok {
		return Entry{}, NewNotFoundError(name)
	}
	return *e, nil
}

// ResolveOn resolves with an explicit node selector: NodeLocal is plain
// local resolution, NodeAny falls through to authorized peers on a local
// miss, and any other value targets that node directly. Without an attached
// Remote, every selector degrades to local resolution.
func (r *Registry) ResolveOn(ctx context.Context, name string, node NodeSelector) (any, error) {
	switch node {
	case NodeLocal, "":
		return r.Resolve(name)
	case NodeAny:
		h, err := r.Resolve(name)
		if err == nil || !IsNotFound(err) {
			return h, err
		}
		if r.remote == nil {
			return nil, err
		}
	default:
		if r.remote == nil {
			return nil, NewNodeNotFoundError(string(node))
		}
	}

	h, err := r.remote.Resolve(ctx, name, string(node))
	if err != nil {
		return nil, err
	}
	r.metrics.RecordResolution("remote", "hit")
	return h, nil
}

// CallRemote resolves name on node and invokes function(args) against it.
// Transport failures and remote faults come back as typed errors, never as
// panics or hangs.
func (r *Registry) CallRemote(ctx context.Context, name, node, function string, args map[string]any) (any, error) {
	if r.remote == nil {
		return nil, NewRemoteUnavailableError(name, "no cluster attached", nil)
	}
	return r.remote.Call(ctx, name, node, function, args)
}

// ListAll returns every entry, including degraded ones.
func (r *Registry) ListAll() []Entry {
	return r.shared.store.Load().all()
}

// ListAvailable returns entries below the failure threshold whose handler
// is loadable and whose optional availability probe passes. A panicking
// probe marks the entry unavailable; it never propagates.
func (r *Registry) ListAvailable() []Entry {
	var out []Entry
	for _, e := range r.shared.store.Load().all() {
		if e.FailureCount >= r.opts.MaxFailures {
			continue
		}
		if !handlerLoaded(e.Handler) {
			continue
		}
		if !handlerAvailable(e.Handler) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Close stops the supervision tree cleanly. The registry must not be used
// afterwards.
func (r *Registry) Close() error {
	err := r.call(command{kind: cmdStop})
	if err == nil {
		<-r.exited
	}
	return err
}

// outcome maps an error to a metrics label.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
