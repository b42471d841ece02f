package zone

import "fmt"

// Zone is a node's trust tier for cross-node registry operations.
type Zone int

const (
	// ZoneHostile is the fail-closed default for unknown nodes.
	ZoneHostile Zone = 0

	// ZoneWorker is the intermediate tier mediating between hostile and
	// core nodes.
	ZoneWorker Zone = 1

	// ZoneCore is the most trusted tier.
	ZoneCore Zone = 2
)

// String returns the conventional name of the zone.
func (z Zone) String() string {
	switch z {
	case ZoneHostile:
		return "hostile"
	case ZoneWorker:
		return "worker"
	case ZoneCore:
		return "core"
	default:
		return fmt.Sprintf("zone(%d)", int(z))
	}
}

// Valid reports whether z is one of the three defined tiers.
func (z Zone) Valid() bool {
	return z >= ZoneHostile && z <= ZoneCore
}

// NodeInfo describes one node known to the directory.
type NodeInfo struct {
	// NodeID identifies the node across the deployment.
	NodeID string `json:"node_id" yaml:"node_id"`

	// Zone is the node's trust tier.
	Zone Zone `json:"zone" yaml:"zone"`

	// Apps is a diagnostic list of applications the node runs.
	Apps []string `json:"apps,omitempty" yaml:"apps,omitempty"`
}

// ViolationError is the typed rejection of a cross-zone request.
type ViolationError struct {
	// From is the requesting zone.
	From Zone `json:"from"`

	// To is the target zone.
	To Zone `json:"to"`
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("zone_violation: %s -> %s", e.From, e.To)
}

// Is matches any ViolationError regardless of the zones involved.
func (e *ViolationError) Is(target error) bool {
	_, ok := target.(*ViolationError)
	return ok
}
