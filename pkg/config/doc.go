// Package config loads the daemon configuration from YAML.
//
// A single file drives the whole node: identity, registry tuning, trust
// zones, cluster membership, snapshot persistence, and telemetry. Every
// section is optional; a missing section keeps its compiled-in defaults,
// and an empty node ID gets a generated one so a bare `relaygrid serve`
// still comes up. Unknown fields are rejected so typos fail loudly
// instead of silently falling back to defaults.
package config
