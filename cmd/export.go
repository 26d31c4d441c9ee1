package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/probate-link/internal/export"
	"github.com/sells-group/probate-link/internal/leads"
	"github.com/sells-group/probate-link/internal/pipeline"
)

var (
	exportOut    string
	exportFormat string
	exportReview bool
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the match report of a run",
	Long:  "Writes every resolved lead of a run with its assessor record, owner match, tax statement, and outreach contact as CSV or XLSX.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetRun(ctx, args[0]); err != nil {
			return err
		}
		matches, taxes, err := pipeline.Report(ctx, st, args[0])
		if err != nil {
			return err
		}

		rows := make([]leads.Row, 0, len(matches))
		for i := range matches {
			m := &matches[i]
			if exportReview && !m.NeedsFollowUp() {
				continue
			}
			rows = append(rows, export.Record(m, taxes[m.Account()]))
		}

		format := exportFormat
		if format == "" && exportOut == "" {
			format = cfg.Export.Format
		}
		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.Export.Dir, args[0]+"."+format)
		}
		return export.WriteFile(out, format, export.Columns, rows)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "report path (default <export.dir>/<run-id>.<format>)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or xlsx (default from --out extension, then export.format)")
	exportCmd.Flags().BoolVar(&exportReview, "review", false, "only leads that need a human look")
	rootCmd.AddCommand(exportCmd)
}
