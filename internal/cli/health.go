package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Check server health and the number of open websocket connections.

Exits non-zero when the server is unreachable or reports a status other than
"ok", so it can be used as a liveness probe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result HealthResult

			if err := client.Get("/api/v1/health", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			if result.Status != "ok" {
				return fmt.Errorf("server reports status %q", result.Status)
			}
			return nil
		},
	}
}
