package main

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/export"
	"github.com/sells-group/probate-link/internal/leads"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
)

var (
	resolveLimit int
	resolveOut   string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <leads-file>",
	Short: "Link party-level leads to appraisal district accounts",
	Long:  "Builds leads from a discovery CSV or XLSX file, runs each through the tier cascade, stores the results, and writes a match report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		rows, err := leads.ReadFile(ctx, args[0], cfg.Leads)
		if err != nil {
			return err
		}
		built, stats := leads.Build(rows)
		zap.L().Info("leads built",
			zap.Int("rows", stats.Rows),
			zap.Int("leads", stats.Leads),
			zap.Int("duplicates", stats.Duplicates),
		)
		if len(built) == 0 {
			zap.L().Info("no leads to resolve")
			return nil
		}
		if resolveLimit > 0 && len(built) > resolveLimit {
			built = built[:resolveLimit]
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

		run, matches, err := runner.Run(ctx, filepath.Base(args[0]), built)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		out := resolveOut
		if out == "" {
			out = filepath.Join(cfg.Export.Dir, run.ID+"."+cfg.Export.Format)
		}
		reportRows := make([]leads.Row, 0, len(matches))
		for _, m := range matches {
			reportRows = append(reportRows, export.Record(m, nil))
		}
		if err := export.WriteFile(out, "", export.Columns, reportRows); err != nil {
			return err
		}

		logRunSummary(run)
		return nil
	},
}

func logRunSummary(run *model.Run) {
	zap.L().Info("run complete",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("leads", run.Stats.Leads),
		zap.Int("matched", run.Stats.Matched),
		zap.Int("unmatched", run.Stats.Unmatched),
		zap.Int("review", run.Stats.Review),
		zap.Int("failed", run.Stats.Failed),
	)
}

func init() {
	resolveCmd.Flags().IntVar(&resolveLimit, "limit", 0, "max number of leads to resolve (0 = all)")
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "report path (default <export.dir>/<run-id>.<export.format>)")
	rootCmd.AddCommand(resolveCmd)
}
