package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cleanupCmd(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete report exports older than the signed URL TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := state.connect()
			if err != nil {
				return err
			}
			removed := a.Reports.CleanupExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired export(s) removed\n", removed)
			return nil
		},
	}
}
