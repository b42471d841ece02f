package cluster

import (
	"context"
	"time"

	"github.com/relaygrid/relaygrid/pkg/registry"
	"github.com/relaygrid/relaygrid/pkg/telemetry"
	"github.com/relaygrid/relaygrid/pkg/zone"
)

// DefaultResolveTimeout bounds one remote resolution probe.
const DefaultResolveTimeout = 5 * time.Second

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Membership supplies the live peer set. May be set later with
	// SetMembership when the group is created after the resolver.
	Membership Membership

	// Transport moves probes and calls to peers. Required.
	Transport Transport

	// Directory gates which peers the local node may resolve against.
	// Required.
	Directory *zone.Directory

	// CacheTTL is how long remote resolutions stay cached. Defaults to
	// DefaultCacheTTL.
	CacheTTL time.Duration

	// ResolveTimeout bounds each per-peer probe. Defaults to
	// DefaultResolveTimeout.
	ResolveTimeout time.Duration

	// CallTimeout bounds each remote invocation. Defaults to
	// DefaultRemoteCallTimeout.
	CallTimeout time.Duration

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Resolver answers remote resolution and invocation requests for a local
// registry. Any-node resolution walks the peers the zone directory permits
// and caches the first hit; targeted resolution checks the zone gate for
// that one node. Resolved handlers are proxies that route invocations back
// through the transport.
type Resolver struct {
	membership Membership
	transport  Transport
	dir        *zone.Directory
	cache      *remoteCache

	resolveTimeout time.Duration
	callTimeout    time.Duration

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

var _ registry.Remote = (*Resolver)(nil)

// NewResolver creates a resolver over the given membership and transport.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultRemoteCallTimeout
	}
	return &Resolver{
		membership:     opts.Membership,
		transport:      opts.Transport,
		dir:            opts.Directory,
		cache:          newRemoteCache(opts.CacheTTL),
		resolveTimeout: opts.ResolveTimeout,
		callTimeout:    opts.CallTimeout,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
	}
}

// SetMembership attaches the peer group. Call before the first resolution.
func (r *Resolver) SetMembership(m Membership) {
	r.membership = m
}

// DropNode evicts every cached resolution sourced from node. Wire this as
// the membership OnLeave hook.
func (r *Resolver) DropNode(node string) {
	r.cache.dropNode(node)
}

// FlushCache drops all cached remote resolutions.
func (r *Resolver) FlushCache() {
	r.cache.flush()
}

// Resolve resolves name remotely. node is either a specific node name or
// registry.NodeAny to probe every permitted peer. The returned handler is
// a proxy implementing registry.Invoker.
func (r *Resolver) Resolve(ctx context.Context, name, node string) (any, error) {
	ctx, span := r.tracer.StartResolveSpan(ctx, name, node)
	defer span.End()

	var (
		h   any
		err error
	)
	if node == string(registry.NodeAny) {
		h, err = r.resolveAny(ctx, name)
	} else {
		h, err = r.resolveOn(ctx, name, node)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return h, nil
}

// Call resolves name on node and invokes function(args) on it.
func (r *Resolver) Call(ctx context.Context, name, node, function string, args map[string]any) (any, error) {
	ctx, span := r.tracer.StartRemoteCallSpan(ctx, name, node, function)
	defer span.End()

	timer := telemetry.NewTimer()

	h, err := r.Resolve(ctx, name, node)
	if err != nil {
		r.metrics.RecordRemoteCall("resolve_failed", timer.Duration())
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, ok := h.(registry.Invoker)
	if !ok {
		err := registry.NewRemoteCallFailedError(name, node, "resolved handler is not invokable", nil)
		r.metrics.RecordRemoteCall("not_invokable", timer.Duration())
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := inv.Invoke(ctx, function, args)
	if err != nil {
		r.metrics.RecordRemoteCall("failure", timer.Duration())
		telemetry.RecordError(span, err)
		return nil, err
	}
	r.metrics.RecordRemoteCall("success", timer.Duration())
	telemetry.RecordSuccess(span)
	return result, nil
}

// resolveAny probes every peer the zone directory permits, in sorted node
// order, and caches the first hit under the entry name.
func (r *Resolver) resolveAny(ctx context.Context, name string) (any, error) {
	// Without zone enforcement there is no trust basis for scanning the
	// cluster; any-node resolution stays local and the local miss stands.
	if r.dir.Disabled() {
		return nil, registry.NewNotFoundError(name)
	}

	if res, ok := r.cache.get(name); ok {
		r.metrics.RecordRemoteCacheLookup(true)
		return res.Handler, nil
	}
	r.metrics.RecordRemoteCacheLookup(false)

	if r.membership == nil {
		return nil, registry.NewRemoteUnavailableError(name, "no peer group attached", nil)
	}

	peers := r.membership.Peers()
	probed := 0
	localZone := r.dir.LocalZone()
	for _, p := range peers {
		if !r.dir.CanResolve(localZone, r.dir.TrustZone(p.Node)) {
			continue
		}
		probed++

		h, err := r.probe(ctx, name, p)
		if err != nil {
			if r.log != nil && !registry.IsNotFound(err) {
				r.log.WithNode(p.Node).WithEntry(name).WithError(err).Debugf("peer probe failed")
			}
			continue
		}
		r.cache.put(name, &cachedResolution{Handler: h, Source: p.Node})
		return h, nil
	}

	if probed == 0 && len(peers) > 0 {
		return nil, registry.NewRemoteUnavailableError(name, "no peer in a reachable trust zone", nil)
	}
	return nil, registry.NewNotFoundError(name)
}

// resolveOn probes exactly one node, after the zone gate.
func (r *Resolver) resolveOn(ctx context.Context, name, node string) (any, error) {
	localZone := r.dir.LocalZone()
	targetZone := r.dir.TrustZone(node)
	if !r.dir.CanResolve(localZone, targetZone) {
		r.metrics.RecordZoneViolation()
		if r.log != nil {
			r.log.WithNode(node).WithZone(int(targetZone)).WithEntry(name).Warnf("resolution blocked by trust zone")
		}
		return nil, &zone.ViolationError{From: localZone, To: targetZone}
	}

	key := targetedKey(name, node)
	if res, ok := r.cache.get(key); ok {
		r.metrics.RecordRemoteCacheLookup(true)
		return res.Handler, nil
	}
	r.metrics.RecordRemoteCacheLookup(false)

	p, ok := r.peer(node)
	if !ok {
		return nil, registry.NewNodeNotFoundError(node)
	}

	h, err := r.probe(ctx, name, p)
	if err != nil {
		return nil, err
	}
	r.cache.put(key, &cachedResolution{Handler: h, Source: node})
	return h, nil
}

// probe asks one peer whether it holds name and wraps the answer in a
// remote handler proxy.
func (r *Resolver) probe(ctx context.Context, name string, p Peer) (*remoteHandler, error) {
	if p.RPCAddr == "" {
		return nil, registry.NewRemoteUnavailableError(name, "peer advertises no rpc address", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()

	reply, err := r.transport.ResolveEntry(ctx, p.RPCAddr, name)
	if err != nil {
		if registry.CodeOf(err) != "" {
			return nil, err
		}
		return nil, registry.NewRemoteUnavailableError(name, "peer unreachable", err)
	}
	return &remoteHandler{
		name:    reply.Name,
		node:    p.Node,
		addr:    p.RPCAddr,
		t:       r.transport,
		timeout: r.callTimeout,
	}, nil
}

func (r *Resolver) peer(node string) (Peer, bool) {
	if r.membership == nil {
		return Peer{}, false
	}
	for _, p := range r.membership.Peers() {
		if p.Node == node {
			return p, true
		}
	}
	return Peer{}, false
}
