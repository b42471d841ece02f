package zone

import (
	"sort"
	"sync"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
)

// Options configures a zone directory.
type Options struct {
	// Enabled turns zone enforcement on. When false (single-node or dev
	// deployments) every node is treated as ZoneCore.
	Enabled bool

	// LocalNode is the identifier of this node.
	LocalNode string

	// LocalZone is this node's trust tier.
	LocalZone Zone

	// Nodes is the static node-to-zone map applied at startup.
	Nodes map[string]NodeInfo

	// Logger receives directory lifecycle logs. Optional.
	Logger *telemetry.Logger

	// Metrics receives zone violation counts. Optional.
	Metrics *telemetry.Metrics
}

// Directory classifies nodes into trust tiers and gates cross-node
// resolution. It is safe for concurrent use.
//
// The directory keeps two tables: the configured table is the static
// node-to-zone assignment from configuration, and the live table tracks
// currently connected nodes. Disconnects remove a node from the live
// table only, so a configured node that drops and rejoins gets its
// assigned zone back rather than the hostile default.
type Directory struct {
	mu         sync.RWMutex
	enabled    bool
	local      NodeInfo
	configured map[string]NodeInfo
	nodes      map[string]NodeInfo
	log        *telemetry.Logger
	metrics    *telemetry.Metrics
}

// NewDirectory creates a directory from static configuration. The local
// node is always present in the table.
func NewDirectory(opts Options) *Directory {
	log := opts.Logger
	if log == nil {
		nop, _ := telemetry.NewLogger(telemetry.LoggingConfig{Level: "fatal", Format: "json", Output: "stderr"})
		log = nop
	}

	local := NodeInfo{NodeID: opts.LocalNode, Zone: opts.LocalZone}
	if !opts.Enabled {
		local.Zone = ZoneCore
	}

	configured := make(map[string]NodeInfo, len(opts.Nodes))
	nodes := make(map[string]NodeInfo, len(opts.Nodes)+1)
	for id, info := range opts.Nodes {
		info.NodeID = id
		configured[id] = info
		nodes[id] = info
	}
	nodes[local.NodeID] = local

	return &Directory{
		enabled:    opts.Enabled,
		local:      local,
		configured: configured,
		nodes:      nodes,
		log:        log.NewComponentLogger("zone"),
		metrics:    opts.Metrics,
	}
}

// Disabled reports whether zone enforcement is off.
func (d *Directory) Disabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.enabled
}

// LocalNode returns this node's identifier.
func (d *Directory) LocalNode() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.local.NodeID
}

// LocalZone returns this node's trust tier.
func (d *Directory) LocalZone() Zone {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		return ZoneCore
	}
	return d.local.Zone
}

// TrustZone returns the trust tier of a node. With zones disabled every
// node is core. An unknown node answers hostile, the fail-closed default;
// the lookup never mutates the table, so a mistyped node name cannot
// plant entries in it. Node-connect events go through NodeConnected.
func (d *Directory) TrustZone(nodeID string) Zone {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		return ZoneCore
	}
	if info, ok := d.nodes[nodeID]; ok {
		return info.Zone
	}
	if info, ok := d.configured[nodeID]; ok {
		return info.Zone
	}
	return ZoneHostile
}

// NodeConnected records a node joining the cluster and returns its zone.
// A configured node gets its assigned zone back, however often it drops
// and rejoins. A node never seen in configuration is registered hostile
// with a warning.
func (d *Directory) NodeConnected(nodeID string) Zone {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return ZoneCore
	}
	if info, ok := d.nodes[nodeID]; ok {
		return info.Zone
	}
	if info, ok := d.configured[nodeID]; ok {
		d.nodes[nodeID] = info
		return info.Zone
	}
	d.nodes[nodeID] = NodeInfo{NodeID: nodeID, Zone: ZoneHostile}
	d.log.Warnf("unknown node %q connected; assigning zone 0 (hostile)", nodeID)
	return ZoneHostile
}

// RegisterNode records or updates a node's zone assignment. The
// assignment joins the configured table, so it survives disconnects the
// same way a zone-file entry does.
func (d *Directory) RegisterNode(nodeID string, info NodeInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info.NodeID = nodeID
	d.configured[nodeID] = info
	d.nodes[nodeID] = info
	d.log.Debugf("node %q registered in zone %s", nodeID, info.Zone)
}

// RemoveNode drops a node from the live table on disconnect. Its
// configured assignment, if any, stays; a node without one falls back to
// the hostile default. The local node cannot be removed.
func (d *Directory) RemoveNode(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nodeID == d.local.NodeID {
		return
	}
	delete(d.nodes, nodeID)
	d.log.Debugf("node %q removed from zone directory", nodeID)
}

// ListNodes returns every known node, sorted by identifier.
func (d *Directory) ListNodes() []NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]NodeInfo, 0, len(d.nodes))
	for _, info := range d.nodes {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// NodesInZone returns the nodes assigned to a zone, sorted by identifier.
func (d *Directory) NodesInZone(z Zone) []NodeInfo {
	var out []NodeInfo
	for _, info := range d.ListNodes() {
		if info.Zone == z {
			out = append(out, info)
		}
	}
	return out
}

// CanAccess decides general data-flow between zones: equal zones always
// pass, a more trusted zone may reach down freely, and a hostile request
// may never target core directly; it must be mediated by a worker. Every
// other upward hop passes, on the expectation that the caller applies
// sanitization appropriate to the trust gap.
//
// Nothing inside the registry enforces CanAccess; it is exposed as a
// utility for callers outside this subsystem. Registry visibility is
// governed by the stricter CanResolve.
func (d *Directory) CanAccess(from, to Zone) error {
	if from == ZoneHostile && to == ZoneCore {
		d.metrics.RecordZoneViolation()
		return &ViolationError{From: from, To: to}
	}
	return nil
}

// CanResolve reports whether a resolver in zone from may see registry
// entries owned by zone to: only entries of zones no more trusted than the
// resolver itself are visible.
func (d *Directory) CanResolve(from, to Zone) bool {
	return from >= to
}

// Reload replaces the configured node table wholesale, keeping the local
// node. The live table is rebuilt from the new assignments. Used by the
// config watcher when the zone file changes on disk.
func (d *Directory) Reload(nodes map[string]NodeInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	configured := make(map[string]NodeInfo, len(nodes))
	replacement := make(map[string]NodeInfo, len(nodes)+1)
	for id, info := range nodes {
		info.NodeID = id
		configured[id] = info
		replacement[id] = info
	}
	replacement[d.local.NodeID] = d.local
	d.configured = configured
	d.nodes = replacement
	d.log.Infof("zone directory reloaded with %d nodes", len(replacement))
}
