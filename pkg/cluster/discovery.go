package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
	"github.com/relaygrid/relaygrid/pkg/zone"
)

// Peer is one known cluster member other than the local node.
type Peer struct {
	// Node is the member's cluster name.
	Node string

	// Zone is the trust zone the member advertises for itself. Advisory
	// only; the authoritative zone always comes from the local directory.
	Zone zone.Zone

	// RPCAddr is where the member's registry API listens.
	RPCAddr string
}

// Membership is the view of the cluster a resolver needs. The production
// implementation is Group; tests substitute a static fake.
type Membership interface {
	// LocalNode returns the local member name.
	LocalNode() string

	// Peers returns the live members excluding the local node.
	Peers() []Peer
}

// peerMeta is the metadata blob each member gossips about itself.
type peerMeta struct {
	Zone    int    `json:"zone"`
	RPCAddr string `json:"rpc_addr"`
}

// GroupOptions configures cluster membership.
type GroupOptions struct {
	// NodeName is the local member name. Required.
	NodeName string

	// BindAddr and BindPort are the gossip listen address.
	BindAddr string
	BindPort int

	// AdvertiseAddr and AdvertisePort override the address gossiped to
	// peers, for nodes behind NAT.
	AdvertiseAddr string
	AdvertisePort int

	// RPCAddr is the registry API address gossiped to peers.
	RPCAddr string

	// Seeds are addresses of existing members to join on startup.
	Seeds []string

	// Directory resolves peer trust zones. Joins of unknown nodes register
	// them as hostile.
	Directory *zone.Directory

	// OnLeave, when set, runs after a member leaves or fails. The resolver
	// hooks cache eviction here.
	OnLeave func(node string)

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// Group is the memberlist-backed cluster membership. It gossips the local
// node's advisory zone and RPC address, tracks joins and departures
// against the zone directory, and exposes the live peer set.
type Group struct {
	opts GroupOptions
	ml   *memberlist.Memberlist
	log  *telemetry.Logger

	mu    sync.RWMutex
	addrs map[string]string // node -> rpc addr, from gossiped meta
}

// NewGroup creates the local member and joins the configured seeds. The
// returned group is live immediately; call Leave to depart cleanly.
func NewGroup(opts GroupOptions) (*Group, error) {
	if opts.NodeName == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("zone directory is required")
	}

	g := &Group{
		opts:  opts,
		log:   opts.Logger,
		addrs: make(map[string]string),
	}

	cfg := memberlist.DefaultLANConfig()
	cfg.Name = opts.NodeName
	if opts.BindAddr != "" {
		cfg.BindAddr = opts.BindAddr
	}
	if opts.BindPort != 0 {
		cfg.BindPort = opts.BindPort
	}
	if opts.AdvertiseAddr != "" {
		cfg.AdvertiseAddr = opts.AdvertiseAddr
	}
	if opts.AdvertisePort != 0 {
		cfg.AdvertisePort = opts.AdvertisePort
	}
	cfg.Delegate = &metaDelegate{group: g}
	cfg.Events = &eventTracker{group: g}
	cfg.LogOutput = io.Discard

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster member: %w", err)
	}
	g.ml = ml

	if len(opts.Seeds) > 0 {
		joined, err := ml.Join(opts.Seeds)
		if err != nil && joined == 0 {
			ml.Shutdown()
			return nil, fmt.Errorf("failed to join cluster: %w", err)
		}
		if g.log != nil {
			g.log.Infof("joined cluster via %d seed(s)", joined)
		}
	}

	g.updatePeerGauge()
	return g, nil
}

// LocalNode returns the local member name.
func (g *Group) LocalNode() string {
	return g.opts.NodeName
}

// Peers returns the live members excluding the local node, sorted by
// node name. Each peer's zone is the advisory zone from its gossiped
// metadata.
func (g *Group) Peers() []Peer {
	members := g.ml.Members()
	peers := make([]Peer, 0, len(members))

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, m := range members {
		if m.Name == g.opts.NodeName {
			continue
		}
		meta := decodeMeta(m.Meta)
		addr := g.addrs[m.Name]
		if addr == "" {
			addr = meta.RPCAddr
		}
		peers = append(peers, Peer{
			Node:    m.Name,
			Zone:    zone.Zone(meta.Zone),
			RPCAddr: addr,
		})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Node < peers[j].Node })
	return peers
}

// RPCAddr returns the registry API address gossiped by node, if known.
func (g *Group) RPCAddr(node string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	addr, ok := g.addrs[node]
	return addr, ok
}

// Leave departs the cluster cleanly and shuts down the gossip listener.
func (g *Group) Leave(timeout time.Duration) error {
	if err := g.ml.Leave(timeout); err != nil {
		g.ml.Shutdown()
		return fmt.Errorf("failed to leave cluster: %w", err)
	}
	if err := g.ml.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down cluster member: %w", err)
	}
	return nil
}

func (g *Group) updatePeerGauge() {
	if g.opts.Metrics == nil {
		return
	}
	g.opts.Metrics.SetPeersConnected(float64(g.ml.NumMembers() - 1))
}

func decodeMeta(raw []byte) peerMeta {
	var meta peerMeta
	if len(raw) > 0 {
		// Malformed meta leaves the zero value: hostile zone, no address.
		json.Unmarshal(raw, &meta)
	}
	return meta
}

// metaDelegate gossips the local node's metadata.
type metaDelegate struct {
	group *Group
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	meta := peerMeta{
		Zone:    int(d.group.opts.Directory.LocalZone()),
		RPCAddr: d.group.opts.RPCAddr,
	}
	raw, err := json.Marshal(meta)
	if err != nil || len(raw) > limit {
		return nil
	}
	return raw
}

func (d *metaDelegate) NotifyMsg([]byte)                           {}
func (d *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *metaDelegate) LocalState(join bool) []byte                { return nil }
func (d *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

// eventTracker reacts to membership changes: joins consult the zone
// directory (hostile by default for unknown nodes), departures evict the
// node from the directory and fire the OnLeave hook.
type eventTracker struct {
	group *Group
}

func (t *eventTracker) NotifyJoin(n *memberlist.Node) {
	g := t.group
	if n.Name == g.opts.NodeName {
		return
	}

	meta := decodeMeta(n.Meta)
	g.mu.Lock()
	g.addrs[n.Name] = meta.RPCAddr
	g.mu.Unlock()

	z := g.opts.Directory.NodeConnected(n.Name)
	if g.log != nil {
		g.log.WithNode(n.Name).WithZone(int(z)).Infof("node joined cluster")
	}
	g.updatePeerGauge()
}

func (t *eventTracker) NotifyLeave(n *memberlist.Node) {
	g := t.group
	if n.Name == g.opts.NodeName {
		return
	}

	g.mu.Lock()
	delete(g.addrs, n.Name)
	g.mu.Unlock()

	g.opts.Directory.RemoveNode(n.Name)
	if g.opts.OnLeave != nil {
		g.opts.OnLeave(n.Name)
	}
	if g.log != nil {
		g.log.WithNode(n.Name).Infof("node left cluster")
	}
	g.updatePeerGauge()
}

func (t *eventTracker) NotifyUpdate(n *memberlist.Node) {
	g := t.group
	if n.Name == g.opts.NodeName {
		return
	}
	meta := decodeMeta(n.Meta)
	g.mu.Lock()
	g.addrs[n.Name] = meta.RPCAddr
	g.mu.Unlock()
}
