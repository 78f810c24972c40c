package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func balanceCmd(state *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "balance <student-id>",
		Short: "Show unpaid classes of a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := state.connect()
			if err != nil {
				return err
			}
			balance, _, err := a.Reconciliation.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(balance)
			}
			unpaid := balance.Unpaid
			fmt.Fprintf(out, "student %s as of %s\n", balance.StudentID, balance.AsOf)
			fmt.Fprintf(out, "classes %d, paid %d, credit %d, absent %d, canceled %d, skipped %d\n",
				unpaid.TotalClasses, unpaid.PaidCount, unpaid.CreditCount, unpaid.AbsentCount, unpaid.CanceledCount, unpaid.SkippedCount)
			fmt.Fprintf(out, "unpaid %d classes, %s\n", unpaid.UnpaidCount, unpaid.UnpaidAmount.StringFixed(2))
			if len(unpaid.UnpaidDates) > 0 {
				dates := make([]string, 0, len(unpaid.UnpaidDates))
				for _, d := range unpaid.UnpaidDates {
					dates = append(dates, d.String())
				}
				fmt.Fprintf(out, "unpaid dates: %s\n", strings.Join(dates, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full balance as JSON")
	return cmd
}
