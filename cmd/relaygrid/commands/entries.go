package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type entryView struct {
	Name         string         `json:"name"`
	Core         bool           `json:"core"`
	FailureCount int            `json:"failure_count"`
	Metadata     map[string]any `json:"metadata"`
	RegisteredAt time.Time      `json:"registered_at"`
}

type entriesReply struct {
	Node    string      `json:"node"`
	Entries []entryView `json:"entries"`
}

func newEntriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect registry entries",
		Long: `Inspect the entries held by a running node.

Listing shows every entry including degraded ones; resolving a single
name runs the same resolution path a caller would hit, so a degraded or
unloaded entry reports its error code.`,
	}

	cmd.AddCommand(newEntriesListCommand())
	cmd.AddCommand(newEntriesResolveCommand())

	return cmd
}

func newEntriesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all registry entries",
		Example: `  # List entries on the local node
  relaygrid entries list

  # List entries on another node
  relaygrid entries list --addr 10.0.0.5:7410`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)

			var reply entriesReply
			if err := client.get(cmd.Context(), "/v1/entries", &reply); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(reply)
			}

			fmt.Printf("Node: %s (%d entries)\n", reply.Node, len(reply.Entries))
			for _, e := range reply.Entries {
				marker := " "
				if e.Core {
					marker = "*"
				}
				status := "ok"
				if e.FailureCount > 0 {
					status = fmt.Sprintf("%d failure(s)", e.FailureCount)
				}
				fmt.Printf("  %s %-40s %s\n", marker, e.Name, status)
			}
			return nil
		},
	}

	return cmd
}

func newEntriesResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve a single entry",
		Args:  cobra.ExactArgs(1),
		Example: `  # Resolve an entry on the local node
  relaygrid entries resolve auth.check_token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)

			var reply struct {
				Name     string         `json:"name"`
				Node     string         `json:"node"`
				Metadata map[string]any `json:"metadata"`
			}
			if err := client.get(cmd.Context(), "/v1/entries/"+args[0], &reply); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(reply)
			}

			fmt.Printf("Name: %s\nNode: %s\n", reply.Name, reply.Node)
			for k, v := range reply.Metadata {
				fmt.Printf("  %s: %v\n", k, v)
			}
			return nil
		},
	}

	return cmd
}
