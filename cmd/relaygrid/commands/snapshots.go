package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaygrid/relaygrid/pkg/stores"
)

func newSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage persisted registry snapshots",
		Long: `Manage the snapshot database of a node.

These commands open the SQLite database directly, so point --config at
the same file the daemon uses. Safe to run while the daemon is up; the
database runs in WAL mode.`,
	}

	cmd.AddCommand(newSnapshotsListCommand())
	cmd.AddCommand(newSnapshotsPruneCommand())

	return cmd
}

func openStore(cmd *cobra.Command) (*stores.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("no snapshot store configured (set store.path in the config)")
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Open(cmd.Context()); err != nil {
		return nil, err
	}
	return store, nil
}

func newSnapshotsListCommand() *cobra.Command {
	var (
		registryName string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted snapshots",
		Example: `  # List recent snapshots
  relaygrid snapshots list --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListSnapshots(cmd.Context(), registryName, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}

			if len(records) == 0 {
				fmt.Println("No snapshots.")
				return nil
			}
			for _, rec := range records {
				locked := ""
				if rec.Locked {
					locked = " locked"
				}
				fmt.Printf("  #%d  %s  %d entries%s\n",
					rec.ID, rec.TakenAt.Format("2006-01-02 15:04:05"), len(rec.Entries), locked)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&registryName, "registry", "default", "registry name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to show")

	return cmd
}

func newSnapshotsPruneCommand() *cobra.Command {
	var (
		registryName string
		keep         int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old snapshots",
		Example: `  # Keep only the 5 newest snapshots
  relaygrid snapshots prune --config config.yaml --keep 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Prune(cmd.Context(), registryName, keep)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted %d snapshot(s).\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&registryName, "registry", "default", "registry name")
	cmd.Flags().IntVar(&keep, "keep", 5, "snapshots to retain")

	return cmd
}
