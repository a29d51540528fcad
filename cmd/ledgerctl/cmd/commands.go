package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger and directory tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	var replay bool
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Print the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			balance, err := a.Service.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\t%s\n", args[0], balance.String())
			if replay {
				replayed, err := a.Ledger.ReplayBalance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "replayed\t%s\n", replayed.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&replay, "replay", false, "also recompute the balance from the ledger")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		kinds    []string
		security string
		limit    int
		desc     bool
	)
	cmd := &cobra.Command{
		Use:   "history <account>",
		Short: "List the ledger entries of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.EntryFilter{SecurityID: security, Limit: limit, Descending: desc}
			for _, k := range kinds {
				kind := models.EntryKind(k)
				if !kind.Valid() {
					return fmt.Errorf("unknown kind %q", k)
				}
				filter.Kinds = append(filter.Kinds, kind)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Service.History(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tKIND\tAMOUNT\tSECURITY\tQUANTITY\tPRICE\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.CreatedAt.Format(time.RFC3339), e.Kind, models.FormatMoney(e.SignedAmount()),
					e.SecurityID, nullString(e.Quantity.Valid, e.Quantity.Decimal.String()),
					nullString(e.Price.Valid, e.Price.Decimal.String()), e.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only entries of these kinds")
	cmd.Flags().StringVar(&security, "security", "", "only entries for this security")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries")
	cmd.Flags().BoolVar(&desc, "desc", false, "newest first")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [account]",
		Short: "Replay the ledger and compare it with cached balances and positions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var accountID string
			if len(args) == 1 {
				accountID = args[0]
			}
			reports, err := a.Service.Reconcile(cmd.Context(), accountID)
			if err != nil {
				return err
			}

			failed, err := writeReports(cmd.OutOrStdout(), reports)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed reconciliation", failed, len(reports))
			}
			return nil
		},
	}
}

// writeReports prints one row per account and returns how many failed.
// Balances are printed exactly; a mismatch can be smaller than a cent.
func writeReports(out io.Writer, reports []ledger.Report) (int, error) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tCACHED\tREPLAYED\tSECURITIES\tSTATUS")
	failed := 0
	for _, r := range reports {
		status := "ok"
		if !r.OK() {
			status = r.Err.Error()
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.AccountID,
			r.Cached.String(), r.Replayed.String(), r.Positions, status)
	}
	return failed, w.Flush()
}

func nullString(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}
