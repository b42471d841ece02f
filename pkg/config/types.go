package config

import (
	"time"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
)

// Config is the full daemon configuration.
type Config struct {
	// Node identifies the local node.
	Node NodeConfig `yaml:"node"`

	// Registry configures the local handler registry.
	Registry RegistryConfig `yaml:"registry"`

	// Zones configures the trust zone directory.
	Zones ZonesConfig `yaml:"zones"`

	// Cluster configures peer discovery and the registry API.
	Cluster ClusterConfig `yaml:"cluster"`

	// Store configures snapshot persistence.
	Store StoreConfig `yaml:"store"`

	// Telemetry configures logging, tracing, and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// NodeConfig identifies the local node.
type NodeConfig struct {
	// ID is the node's cluster name. Generated if empty.
	ID string `yaml:"id"`
}

// RegistryConfig configures the local handler registry.
type RegistryConfig struct {
	// MaxFailures is the circuit-breaker threshold. Entries at or above it
	// stop resolving through ResolveStable.
	MaxFailures int `yaml:"max_failures" validate:"omitempty,min=1"`

	// AllowOverwrite permits re-registering an existing name.
	AllowOverwrite bool `yaml:"allow_overwrite"`

	// CallTimeout bounds each registry operation end to end.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"omitempty,min=0"`

	// CaretakerHold is how long registry state survives a crashed actor
	// before it is discarded.
	CaretakerHold time.Duration `yaml:"caretaker_hold" validate:"omitempty,min=0"`
}

// ZonesConfig configures the trust zone directory.
type ZonesConfig struct {
	// Enabled turns zone gating on. When disabled every node is treated
	// as fully trusted.
	Enabled bool `yaml:"enabled"`

	// LocalZone is the local node's trust zone (0 hostile, 1 worker,
	// 2 core).
	LocalZone int `yaml:"local_zone" validate:"min=0,max=2"`

	// File is an optional YAML node table watched for changes.
	File string `yaml:"file"`

	// Nodes maps node IDs to trust zones for nodes known at startup.
	Nodes map[string]int `yaml:"nodes" validate:"omitempty,dive,min=0,max=2"`
}

// ClusterConfig configures peer discovery and the registry API.
type ClusterConfig struct {
	// Enabled turns clustering on. A standalone node serves only local
	// resolutions.
	Enabled bool `yaml:"enabled"`

	// BindAddr and BindPort are the gossip listen address.
	BindAddr string `yaml:"bind_addr"`
	BindPort int    `yaml:"bind_port" validate:"omitempty,min=1,max=65535"`

	// AdvertiseAddr and AdvertisePort override the gossiped address.
	AdvertiseAddr string `yaml:"advertise_addr"`
	AdvertisePort int    `yaml:"advertise_port" validate:"omitempty,min=1,max=65535"`

	// APIAddr is the registry HTTP API listen address.
	APIAddr string `yaml:"api_addr"`

	// Seeds are gossip addresses of existing members to join.
	Seeds []string `yaml:"seeds"`

	// CacheTTL is how long remote resolutions stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"omitempty,min=0"`

	// ResolveTimeout bounds each per-peer resolution probe.
	ResolveTimeout time.Duration `yaml:"resolve_timeout" validate:"omitempty,min=0"`

	// CallTimeout bounds each remote invocation.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"omitempty,min=0"`
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	// Path is the SQLite database path. Empty disables persistence.
	Path string `yaml:"path"`

	// Keep is how many snapshots to retain per registry.
	Keep int `yaml:"keep" validate:"omitempty,min=1"`
}
