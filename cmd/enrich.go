package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/probate-link/internal/pipeline"
	"github.com/sells-group/probate-link/internal/portal"
	"github.com/sells-group/probate-link/internal/resilience"
)

var enrichRefresh bool

var enrichCmd = &cobra.Command{
	Use:   "enrich <run-id>",
	Short: "Attach tax statements to the matched leads of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}
		if !cfg.TaxRoll.Enabled {
			return eris.New("enrich: taxroll lookups are disabled (taxroll.enabled)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		breakers := resilience.NewBreakers(resilience.FromCircuitConfig(cfg.Circuit))
		session, err := portal.NewSession(ctx, portalTaxRoll, cfg.Portal, breakers.Get(portalTaxRoll))
		if err != nil {
			return err
		}
		defer session.Close()

		enricher := pipeline.NewEnricher(st, portal.NewTaxRoll(session, cfg.TaxRoll.URL), enrichRefresh)
		if _, err := enricher.Enrich(ctx, args[0]); err != nil {
			return eris.Wrap(err, "enrich")
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichRefresh, "refresh", false, "fetch statements again even when stored")
	rootCmd.AddCommand(enrichCmd)
}
