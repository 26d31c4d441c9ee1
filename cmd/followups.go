package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/probate-link/internal/resilience"
)

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Inspect and retry the follow-up queue",
	Long:  "Leads that failed on provider errors, overflowed a result page, or need a human decision are queued here.",
}

// -- followups list --

var followupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued follow-ups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")

		items, err := st.ListFollowUps(ctx, resilience.FollowUpFilter{
			Kind:  resilience.FollowUpKind(kind),
			RunID: runID,
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "followups list")
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No follow-ups found.")
			return nil
		}
		formatFollowUps(os.Stdout, items)
		return nil
	},
}

// -- followups retry --

var followupsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-resolve due transient follow-ups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		breakers := resilience.NewBreakers(resilience.FromCircuitConfig(cfg.Circuit))
		runner, err := initRunner(st, breakers)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		res, err := runner.RetryFollowUps(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "followups retry")
		}
		fmt.Fprintf(os.Stdout, "attempted %d, resolved %d, requeued %d, exhausted %d\n",
			res.Attempted, res.Resolved, res.Requeued, res.Exhausted)
		return nil
	},
}

func init() {
	followupsListCmd.Flags().String("kind", "", "filter by kind (transient, pagination, review)")
	followupsListCmd.Flags().String("run", "", "filter by run ID")
	followupsListCmd.Flags().Int("limit", 50, "max number of follow-ups to display")

	followupsRetryCmd.Flags().Int("limit", 50, "max number of follow-ups to retry")

	followupsCmd.AddCommand(followupsListCmd)
	followupsCmd.AddCommand(followupsRetryCmd)
	rootCmd.AddCommand(followupsCmd)
}

// formatFollowUps writes a tabular list of follow-ups to w.
func formatFollowUps(out io.Writer, items []resilience.FollowUp) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tCASE\tKIND\tSTATUS\tRETRIES\tREASON")
	_, _ = fmt.Fprintln(w, "--\t---\t----\t----\t------\t-------\t------")
	for _, f := range items {
		reason := f.Reason
		if len(reason) > 40 {
			reason = reason[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			truncateID(f.ID),
			truncateID(f.RunID),
			f.Lead.CaseNumber,
			f.Kind,
			f.Status,
			f.RetryCount,
			f.MaxRetries,
			reason,
		)
	}
	_ = w.Flush()
}
