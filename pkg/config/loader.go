package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
)

// Defaults for fields the daemon needs filled even when the file omits
// them. Registry timings default inside the registry package.
const (
	DefaultAPIAddr   = ":7410"
	DefaultBindPort  = 7946
	DefaultStoreKeep = 5
)

// Default returns the configuration a bare node starts with: clustering
// and zones off, persistence off, telemetry at its defaults.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID: fmt.Sprintf("node-%s", uuid.New().String()[:8]),
		},
		Cluster: ClusterConfig{
			BindPort: DefaultBindPort,
			APIAddr:  DefaultAPIAddr,
		},
		Store: StoreConfig{
			Keep: DefaultStoreKeep,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads and validates the configuration at path. Fields the file
// omits keep their defaults; unknown fields are an error.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates raw YAML configuration.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	if c.Cluster.Enabled && c.Node.ID == "" {
		return fmt.Errorf("invalid config: cluster requires a node id")
	}
	if c.Zones.Enabled && !c.Cluster.Enabled {
		return fmt.Errorf("invalid config: zones require clustering")
	}
	return nil
}
