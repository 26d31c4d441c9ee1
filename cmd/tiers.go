package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/probate-link/internal/linkage"
	"github.com/sells-group/probate-link/internal/store"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Inspect the search tier cascade",
}

// -- tiers show --

var tiersShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active tier list as YAML",
	Long:  "Prints the configured tier file, or the built-in cascade, in the format engine.tiers_file accepts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tiers, err := loadTiers()
		if err != nil {
			return err
		}
		out, err := linkage.MarshalTiers(tiers)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

// -- tiers validate --

var tiersValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a tier file and the engine thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tiers, err := linkage.LoadTiers(args[0])
		if err != nil {
			return err
		}
		if err := linkage.ValidateThresholds(cfg.Engine.ThresholdsConfig); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: %d tiers ok\n", args[0], len(tiers))
		return nil
	},
}

// -- tiers stats --

var tiersStatsCmd = &cobra.Command{
	Use:   "stats <run-id>",
	Short: "Show per-tier attempt outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.TierStats(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "tiers stats")
		}
		if len(stats) == 0 {
			fmt.Fprintln(os.Stderr, "No tier attempts found.")
			return nil
		}
		formatTierStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	tiersCmd.AddCommand(tiersShowCmd)
	tiersCmd.AddCommand(tiersValidateCmd)
	tiersCmd.AddCommand(tiersStatsCmd)
	rootCmd.AddCommand(tiersCmd)
}

// formatTierStats writes a tier by status table to w.
func formatTierStats(out io.Writer, stats []store.TierStat) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIER\tSTATUS\tCOUNT")
	_, _ = fmt.Fprintln(w, "----\t------\t-----")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", s.Tier, s.Status, s.Count)
	}
	_ = w.Flush()
}
