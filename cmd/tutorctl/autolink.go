package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func autolinkCmd(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "autolink",
		Short: "Link unlinked payments to students by payer name",
		Long:  `Scans payments without a student and links each one whose payer name matches exactly one active student by name or alias.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := state.connect()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), state.cfg.Cron.AutoLinkTimeout)
			defer cancel()

			result, err := a.Linker.AutoLink(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scanned %d, linked %d, unmatched %d, ambiguous %d, failed %d\n",
				result.Scanned, result.Linked, result.Unmatched, result.Ambiguous, result.Failed)
			ids := make([]string, 0, len(result.Links))
			for id := range result.Links {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(out, "  %s -> %s\n", id, result.Links[id])
			}
			return nil
		},
	}
}
