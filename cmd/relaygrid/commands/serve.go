package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaygrid/relaygrid/pkg/cluster"
	"github.com/relaygrid/relaygrid/pkg/config"
	"github.com/relaygrid/relaygrid/pkg/registry"
	"github.com/relaygrid/relaygrid/pkg/stores"
	"github.com/relaygrid/relaygrid/pkg/telemetry"
	"github.com/relaygrid/relaygrid/pkg/zone"
)

const shutdownGrace = 10 * time.Second

func newServeCommand() *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry daemon",
		Long: `Run a RelayGrid node.

The daemon hosts the local handler registry, joins the cluster when
clustering is enabled, serves the registry HTTP API, and persists
snapshots when a store path is configured.`,
		Example: `  # Run a standalone node with defaults
  relaygrid serve

  # Run a clustered node
  relaygrid serve --config /etc/relaygrid/config.yaml

  # Restore entries from the latest persisted snapshot on startup
  relaygrid serve --config config.yaml --restore`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, restore)
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "restore the latest persisted snapshot on startup")

	return cmd
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runServe(ctx context.Context, cfg *config.Config, restore bool) error {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.WithNode(cfg.Node.ID)
	logger.Infof("starting relaygrid node")

	if err := tel.StartMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Registry
	reg := registry.New(registry.Options{
		Name:           "default",
		MaxFailures:    cfg.Registry.MaxFailures,
		AllowOverwrite: cfg.Registry.AllowOverwrite,
		CallTimeout:    cfg.Registry.CallTimeout,
		CaretakerHold:  cfg.Registry.CaretakerHold,
		Logger:         tel.Logger,
		Metrics:        tel.Metrics,
	})
	defer reg.Close()

	// Snapshot persistence
	var store *stores.SQLiteStore
	if cfg.Store.Path != "" {
		store, err = stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
		if err != nil {
			return fmt.Errorf("failed to create snapshot store: %w", err)
		}
		if err := store.Open(ctx); err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer store.Close()

		if restore {
			if err := restoreSnapshot(ctx, store, reg, logger); err != nil {
				return err
			}
		}
	}

	// Trust zones
	dir := zone.NewDirectory(zone.Options{
		Enabled:   cfg.Zones.Enabled,
		LocalNode: cfg.Node.ID,
		LocalZone: zone.Zone(cfg.Zones.LocalZone),
		Nodes:     zoneNodes(cfg.Zones.Nodes),
		Logger:    tel.Logger,
		Metrics:   tel.Metrics,
	})

	if cfg.Zones.File != "" {
		watcher, err := zone.NewWatcher(cfg.Zones.File, dir, tel.Logger)
		if err != nil {
			return fmt.Errorf("failed to watch zone file: %w", err)
		}
		defer watcher.Close()
	}

	// Cluster
	var (
		group    *cluster.Group
		resolver *cluster.Resolver
	)
	if cfg.Cluster.Enabled {
		resolver = cluster.NewResolver(cluster.ResolverOptions{
			Transport:      cluster.NewHTTPTransport(cfg.Cluster.CallTimeout),
			Directory:      dir,
			CacheTTL:       cfg.Cluster.CacheTTL,
			ResolveTimeout: cfg.Cluster.ResolveTimeout,
			CallTimeout:    cfg.Cluster.CallTimeout,
			Logger:         tel.Logger,
			Metrics:        tel.Metrics,
			Tracer:         tel.Tracer,
		})

		group, err = cluster.NewGroup(cluster.GroupOptions{
			NodeName:      cfg.Node.ID,
			BindAddr:      cfg.Cluster.BindAddr,
			BindPort:      cfg.Cluster.BindPort,
			AdvertiseAddr: cfg.Cluster.AdvertiseAddr,
			AdvertisePort: cfg.Cluster.AdvertisePort,
			RPCAddr:       cfg.Cluster.APIAddr,
			Seeds:         cfg.Cluster.Seeds,
			Directory:     dir,
			OnLeave:       resolver.DropNode,
			Logger:        tel.Logger,
			Metrics:       tel.Metrics,
		})
		if err != nil {
			return err
		}
		defer group.Leave(shutdownGrace)

		resolver.SetMembership(group)
		reg.SetRemote(resolver)
	}

	// Registry API
	server, err := cluster.NewServer(cluster.ServerOptions{
		Addr:      cfg.Cluster.APIAddr,
		NodeName:  cfg.Node.ID,
		Registry:  reg,
		Directory: dir,
		Logger:    tel.Logger,
		Metrics:   tel.Metrics,
	})
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	// Periodic snapshot persistence
	if store != nil {
		go persistLoop(ctx, store, reg, cfg.Store.Keep, logger)
	}

	logger.Infof("relaygrid node ready")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warnf("api server shutdown failed")
	}

	if store != nil {
		if _, err := store.SaveSnapshot(shutdownCtx, "default", reg.Snapshot()); err != nil {
			logger.WithError(err).Warnf("final snapshot failed")
		}
	}
	return nil
}

func restoreSnapshot(ctx context.Context, store *stores.SQLiteStore, reg *registry.Registry, logger *telemetry.Logger) error {
	rec, err := store.LatestSnapshot(ctx, "default")
	if err != nil {
		if errors.Is(err, stores.ErrNoSnapshot) {
			logger.Infof("no snapshot to restore")
			return nil
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := reg.Restore(rec.State()); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	logger.Infof("restored %d entries from snapshot %d", len(rec.Entries), rec.ID)
	return nil
}

// persistLoop snapshots the registry periodically and prunes old records.
func persistLoop(ctx context.Context, store *stores.SQLiteStore, reg *registry.Registry, keep int, logger *telemetry.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.SaveSnapshot(ctx, "default", reg.Snapshot()); err != nil {
				logger.WithError(err).Warnf("periodic snapshot failed")
				continue
			}
			if _, err := store.Prune(ctx, "default", keep); err != nil {
				logger.WithError(err).Warnf("snapshot prune failed")
			}
		}
	}
}

func zoneNodes(nodes map[string]int) map[string]zone.NodeInfo {
	out := make(map[string]zone.NodeInfo, len(nodes))
	for id, z := range nodes {
		out[id] = zone.NodeInfo{NodeID: id, Zone: zone.Zone(z)}
	}
	return out
}
