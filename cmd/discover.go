package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/leads"
	"github.com/sells-group/probate-link/internal/portal"
	"github.com/sells-group/probate-link/internal/resilience"
)

var (
	discoverOut   string
	discoverLimit int
)

var discoverCmd = &cobra.Command{
	Use:   "discover <probate-file>",
	Short: "Find recorded real-property filings for probate leads",
	Long:  "Searches the county clerk real-property index for each probate decedent within the filing-date window and writes one row per record, lot, and party.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		rows, err := leads.ReadFile(ctx, args[0], cfg.Leads)
		if err != nil {
			return err
		}
		probate := leads.ProbateLeads(rows)
		if discoverLimit > 0 && len(probate) > discoverLimit {
			probate = probate[:discoverLimit]
		}
		zap.L().Info("probate leads loaded", zap.Int("rows", len(rows)), zap.Int("leads", len(probate)))
		if len(probate) == 0 {
			return nil
		}

		breakers := resilience.NewBreakers(resilience.FromCircuitConfig(cfg.Circuit))
		session, err := portal.NewSession(ctx, portalClerk, cfg.Portal, breakers.Get(portalClerk))
		if err != nil {
			return err
		}
		defer session.Close()
		clerk := portal.NewClerk(session, cfg.Portal)

		var (
			out    []leads.Row
			failed int
		)
		for _, lead := range probate {
			found, err := clerk.Discover(ctx, lead)
			out = append(out, found...)
			if err != nil {
				if ctx.Err() != nil {
					return eris.Wrap(err, "discover")
				}
				failed++
				zap.L().Warn("discover failed", zap.String("case", lead.CaseNumber), zap.Error(err))
			}
		}

		path := discoverOut
		if path == "" {
			path = filepath.Join(cfg.Export.Dir, "discovered.csv")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrap(err, "discover: create output dir")
		}
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "discover: create output")
		}
		defer f.Close() //nolint:errcheck
		if err := leads.WriteCSV(f, ';', leads.PartyColumns, out); err != nil {
			return err
		}

		zap.L().Info("discover complete",
			zap.String("out", path),
			zap.Int("leads", len(probate)),
			zap.Int("rows", len(out)),
			zap.Int("failed", failed),
		)
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverOut, "out", "", "output CSV path (default <export.dir>/discovered.csv)")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "max number of probate leads to search (0 = all)")
	rootCmd.AddCommand(discoverCmd)
}
