package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newZonesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Inspect the trust zone directory",
	}

	cmd.AddCommand(newZonesListCommand())

	return cmd
}

func newZonesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known nodes and their trust zones",
		Long: `List every node the target node's zone directory knows about.

Nodes that joined the cluster without a static zone assignment show up
as hostile until an operator promotes them.`,
		Example: `  # List zones on the local node
  relaygrid zones list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)

			var reply struct {
				Enabled bool   `json:"enabled"`
				Local   string `json:"local"`
				Nodes   []struct {
					Node string `json:"node"`
					Zone int    `json:"zone"`
					Tier string `json:"tier"`
				} `json:"nodes"`
			}
			if err := client.get(cmd.Context(), "/v1/zones", &reply); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(reply)
			}

			if !reply.Enabled {
				fmt.Println("Zone enforcement: disabled (all nodes trusted)")
			} else {
				fmt.Println("Zone enforcement: enabled")
			}
			for _, n := range reply.Nodes {
				marker := " "
				if n.Node == reply.Local {
					marker = "*"
				}
				fmt.Printf("  %s %-30s zone %d (%s)\n", marker, n.Node, n.Zone, n.Tier)
			}
			return nil
		},
	}

	return cmd
}
