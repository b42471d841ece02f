package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaygrid/relaygrid/pkg/registry"
	"github.com/relaygrid/relaygrid/pkg/zone"
)

// fakeMembership serves a static peer set.
type fakeMembership struct {
	local string
	peers []Peer
}

func (f *fakeMembership) LocalNode() string { return f.local }
func (f *fakeMembership) Peers() []Peer     { return f.peers }

// fakeTransport answers probes and calls from maps and counts traffic.
type fakeTransport struct {
	mu sync.Mutex

	// entries maps addr to the entry names it holds.
	entries map[string][]string

	// failing addrs answer every request with a transport error.
	failing map[string]bool

	callResult any
	callErr    error

	probes int
	calls  int
}

func (f *fakeTransport) ResolveEntry(_ context.Context, addr, name string) (*ResolveReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++

	if f.failing[addr] {
		return nil, errors.New("connection refused")
	}
	for _, held := range f.entries[addr] {
		if held == name {
			return &ResolveReply{Name: name, Node: addr, Metadata: map[string]any{"addr": addr}}, nil
		}
	}
	return nil, registry.NewNotFoundError(name)
}

func (f *fakeTransport) Call(_ context.Context, addr string, req CallRequest) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.failing[addr] {
		return nil, errors.New("connection refused")
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.callResult != nil {
		return f.callResult, nil
	}
	return req.Function, nil
}

func (f *fakeTransport) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func testZoneDirectory(localZone zone.Zone, nodes map[string]zone.Zone) *zone.Directory {
	infos := make(map[string]zone.NodeInfo, len(nodes))
	for id, z := range nodes {
		infos[id] = zone.NodeInfo{Zone: z}
	}
	return zone.NewDirectory(zone.Options{
		Enabled:   true,
		LocalNode: "local-node",
		LocalZone: localZone,
		Nodes:     infos,
	})
}

func newTestResolver(t *testing.T, opts ResolverOptions) *Resolver {
	t.Helper()
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Minute
	}
	return NewResolver(opts)
}

func TestResolveAnyPrefersPermittedPeers(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{
			"core:7410":   {"secret.op"},
			"worker:7410": {"shared.op"},
		},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{
				{Node: "core-1", RPCAddr: "core:7410"},
				{Node: "worker-1", RPCAddr: "worker:7410"},
			},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneWorker, map[string]zone.Zone{
			"core-1":   zone.ZoneCore,
			"worker-1": zone.ZoneWorker,
		}),
	})

	// A worker node may not see core-owned entries: core-1 is skipped, so
	// secret.op is invisible cluster-wide.
	_, err := resolver.Resolve(context.Background(), "secret.op", string(registry.NodeAny))
	if !registry.IsNotFound(err) {
		t.Fatalf("expected not_found for core-held entry, got %v", err)
	}

	// shared.op lives on the permitted worker peer.
	h, err := resolver.Resolve(context.Background(), "shared.op", string(registry.NodeAny))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if h.(*remoteHandler).node != "worker-1" {
		t.Errorf("expected worker-1 source, got %s", h.(*remoteHandler).node)
	}
}

func TestResolveAnyAllPeersFiltered(t *testing.T) {
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "core-1", RPCAddr: "core:7410"}},
		},
		Transport: &fakeTransport{entries: map[string][]string{}},
		Directory: testZoneDirectory(zone.ZoneHostile, map[string]zone.Zone{
			"core-1": zone.ZoneCore,
		}),
	})

	_, err := resolver.Resolve(context.Background(), "any.op", string(registry.NodeAny))
	if registry.CodeOf(err) != registry.ErrCodeRemoteUnavailable {
		t.Fatalf("expected remote_unavailable when every peer is gated, got %v", err)
	}
}

func TestResolveAnyNoPeers(t *testing.T) {
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{local: "local-node"},
		Transport:  &fakeTransport{},
		Directory:  testZoneDirectory(zone.ZoneCore, nil),
	})

	_, err := resolver.Resolve(context.Background(), "any.op", string(registry.NodeAny))
	if !registry.IsNotFound(err) {
		t.Fatalf("expected not_found with no peers, got %v", err)
	}
}

func TestResolveAnySkipsUnreachablePeers(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"b:7410": {"x.op"}},
		failing: map[string]bool{"a:7410": true},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{
				{Node: "node-a", RPCAddr: "a:7410"},
				{Node: "node-b", RPCAddr: "b:7410"},
			},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{
			"node-a": zone.ZoneWorker,
			"node-b": zone.ZoneWorker,
		}),
	})

	h, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny))
	if err != nil {
		t.Fatalf("expected fallthrough past the dead peer: %v", err)
	}
	if h.(*remoteHandler).node != "node-b" {
		t.Errorf("expected node-b, got %s", h.(*remoteHandler).node)
	}
}

func TestResolveCaching(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
	})

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny)); err != nil {
			t.Fatalf("resolve %d failed: %v", i, err)
		}
	}
	if transport.probeCount() != 1 {
		t.Errorf("expected 1 probe with caching, got %d", transport.probeCount())
	}
}

func TestResolveCacheTTLExpiry(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
	}
	resolver := NewResolver(ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
		CacheTTL:  30 * time.Millisecond,
	})

	if _, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny)); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny)); err != nil {
		t.Fatalf("resolve after expiry failed: %v", err)
	}

	if transport.probeCount() != 2 {
		t.Errorf("expected re-probe after TTL, got %d probes", transport.probeCount())
	}
}

func TestDropNodeEvictsCache(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
	})

	if _, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny)); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	resolver.DropNode("node-a")

	if _, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny)); err != nil {
		t.Fatalf("resolve after eviction failed: %v", err)
	}
	if transport.probeCount() != 2 {
		t.Errorf("expected re-probe after node eviction, got %d probes", transport.probeCount())
	}
}

func TestResolveTargetedNode(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"b:7410": {"x.op"}},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{
				{Node: "node-a", RPCAddr: "a:7410"},
				{Node: "node-b", RPCAddr: "b:7410"},
			},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{
			"node-a": zone.ZoneWorker,
			"node-b": zone.ZoneWorker,
		}),
	})

	h, err := resolver.Resolve(context.Background(), "x.op", "node-b")
	if err != nil {
		t.Fatalf("targeted resolve failed: %v", err)
	}
	if h.(*remoteHandler).node != "node-b" {
		t.Errorf("expected node-b, got %s", h.(*remoteHandler).node)
	}

	// Only node-b was probed.
	if transport.probeCount() != 1 {
		t.Errorf("expected 1 probe, got %d", transport.probeCount())
	}
}

func TestResolveTargetedZoneViolation(t *testing.T) {
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "core-1", RPCAddr: "core:7410"}},
		},
		Transport: &fakeTransport{},
		Directory: testZoneDirectory(zone.ZoneWorker, map[string]zone.Zone{"core-1": zone.ZoneCore}),
	})

	_, err := resolver.Resolve(context.Background(), "secret.op", "core-1")
	var v *zone.ViolationError
	if !errors.As(err, &v) {
		t.Fatalf("expected zone violation, got %v", err)
	}
}

func TestResolveTargetedUnknownNode(t *testing.T) {
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{local: "local-node"},
		Transport:  &fakeTransport{},
		Directory:  testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"ghost": zone.ZoneWorker}),
	})

	_, err := resolver.Resolve(context.Background(), "x.op", "ghost")
	if registry.CodeOf(err) != registry.ErrCodeNodeNotFound {
		t.Fatalf("expected node_not_found, got %v", err)
	}
}

func TestCallRoutesThroughTransport(t *testing.T) {
	transport := &fakeTransport{
		entries:    map[string][]string{"a:7410": {"x.op"}},
		callResult: map[string]any{"ok": true},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
	})

	result, err := resolver.Call(context.Background(), "x.op", "node-a", "run", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if result.(map[string]any)["ok"] != true {
		t.Errorf("unexpected call result: %v", result)
	}
}

func TestCallTransportFailure(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
		callErr: errors.New("boom"),
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
	})

	_, err := resolver.Call(context.Background(), "x.op", "node-a", "run", nil)
	if registry.CodeOf(err) != registry.ErrCodeRemoteCallFailed {
		t.Fatalf("expected remote_call_failed, got %v", err)
	}
}

func TestCallPassesThroughTypedErrors(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
		callErr: registry.NewUnstableError("x.op"),
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
	})

	_, err := resolver.Call(context.Background(), "x.op", "node-a", "run", nil)
	if !registry.IsUnstable(err) {
		t.Fatalf("expected the remote's typed error, got %v", err)
	}
}

func TestResolveAnyZonesDisabledStaysLocal(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: zone.NewDirectory(zone.Options{LocalNode: "local-node"}),
	})

	// Without zone enforcement the any-node leg never scans peers, even
	// when one holds the entry.
	_, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny))
	if !registry.IsNotFound(err) {
		t.Fatalf("expected a local-style miss, got %v", err)
	}
	if transport.probeCount() != 0 {
		t.Errorf("expected no peer probes with zones disabled, got %d", transport.probeCount())
	}
}

func TestResolverWithoutMembership(t *testing.T) {
	resolver := newTestResolver(t, ResolverOptions{
		Transport: &fakeTransport{},
		Directory: testZoneDirectory(zone.ZoneCore, nil),
	})

	_, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny))
	if registry.CodeOf(err) != registry.ErrCodeRemoteUnavailable {
		t.Fatalf("expected remote_unavailable without a peer group, got %v", err)
	}
}

func TestTargetedAndAnyCacheKeysIndependent(t *testing.T) {
	transport := &fakeTransport{
		entries: map[string][]string{"a:7410": {"x.op"}},
	}
	resolver := newTestResolver(t, ResolverOptions{
		Membership: &fakeMembership{
			local: "local-node",
			peers: []Peer{{Node: "node-a", RPCAddr: "a:7410"}},
		},
		Transport: transport,
		Directory: testZoneDirectory(zone.ZoneCore, map[string]zone.Zone{"node-a": zone.ZoneWorker}),
	})

	if _, err := resolver.Resolve(context.Background(), "x.op", string(registry.NodeAny)); err != nil {
		t.Fatalf("any-node resolve failed: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "x.op", "node-a"); err != nil {
		t.Fatalf("targeted resolve failed: %v", err)
	}

	// The targeted lookup must not be satisfied by the any-node cache entry.
	if transport.probeCount() != 2 {
		t.Errorf("expected independent cache keys, got %d probes", transport.probeCount())
	}
}
