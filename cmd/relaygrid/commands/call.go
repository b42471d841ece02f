package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCallCommand() *cobra.Command {
	var rawArgs []string

	cmd := &cobra.Command{
		Use:   "call <name> <function>",
		Short: "Invoke a handler on a node",
		Long: `Invoke a function on a registered handler.

The call goes to the node named by --addr; that node resolves the entry
locally and runs the invocation. Arguments are key=value pairs passed
as a map to the handler.`,
		Args: cobra.ExactArgs(2),
		Example: `  # Invoke a handler with arguments
  relaygrid call auth.check_token verify --arg token=abc123

  # Invoke on a specific node
  relaygrid call billing.charge run --addr 10.0.0.5:7410 --arg amount=42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}

			client := newAPIClient(serverAddr)

			req := map[string]any{
				"name":     args[0],
				"function": args[1],
				"args":     callArgs,
			}
			var reply struct {
				Result any `json:"result"`
			}
			if err := client.post(cmd.Context(), "/v1/call", req, &reply); err != nil {
				return err
			}

			return printJSON(reply.Result)
		},
	}

	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "call argument as key=value (repeatable)")

	return cmd
}

func parseArgs(raw []string) (map[string]any, error) {
	args := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", kv)
		}
		args[key] = value
	}
	return args, nil
}
