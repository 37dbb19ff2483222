package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/groupflight/flightgroup/internal/services/tier"
)

func newTierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Tier table helpers",
	}

	var email, name string
	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute the tier table key for a supporter",
		Long: `Compute the key a supporter's tier is recorded under in the tier table.

The key is the hex SHA-256 of the email followed by the pilot name, the same
value clients send as pilot.tier_hash when authenticating.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || name == "" {
				return errors.New("both --email and --name are required")
			}
			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(TierHash{Hash: tier.HashIdentity(email, name)})
			return nil
		},
	}
	hashCmd.Flags().StringVar(&email, "email", "", "Supporter email")
	hashCmd.Flags().StringVar(&name, "name", "", "Pilot name")

	cmd.AddCommand(hashCmd)
	return cmd
}
