package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	serverAddr string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relaygrid",
		Short: "RelayGrid - Distributed Handler Registry",
		Long: `RelayGrid is a distributed handler registry for clustered services.

Each node holds a concurrent registry of named handlers with per-entry
circuit breaking, a sovereignty lock that freezes core entries after
startup, and crash-resilient state handoff. Nodes discover each other
over gossip and resolve handlers across the cluster, gated by trust
zones.

Features:
  - Lock-free local resolution with a read-optimized snapshot cache
  - Per-entry circuit breaker with configurable threshold
  - Core entry locking with namespaced plugin registration
  - Trust-zone gated cross-node resolution and invocation
  - TTL cache for remote resolutions
  - SQLite snapshot persistence`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "addr", "a", "localhost:7410", "registry API address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newEntriesCommand())
	rootCmd.AddCommand(newCallCommand())
	rootCmd.AddCommand(newZonesCommand())
	rootCmd.AddCommand(newSnapshotsCommand())

	return rootCmd
}
