package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/testkube/quality-dashboard/internal/cli"
	"github.com/testkube/quality-dashboard/internal/dashboard"
	"github.com/testkube/quality-dashboard/internal/records"
)

func newSummaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [path...]",
		Short: "Print the dashboard summary.",
		Long: `Print pass rates, suites, the daily trend and recent failures.
With paths, results are read from them. Without, from the record store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			noColor, _ := cmd.Flags().GetBool("no-color")
			failures, _ := cmd.Flags().GetBool("failures")
			if err := validateOutput(output); err != nil {
				return err
			}

			recs, err := a.summaryRecords(cmd, args)
			if err != nil {
				return err
			}

			p := dashboard.Compose(recs, a.cfg.WindowDays, a.reference())
			w := cli.NewWriter(cmd.OutOrStdout(), output, !noColor && !color.NoColor)
			if err := w.WriteSummary(p); err != nil {
				return err
			}
			if failures {
				return w.WriteFailureAnalysis(dashboard.AnalyzeFailures(recs))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", cli.TextOut, "Output format: text or json")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().Bool("failures", false, "Also print the failure breakdown by error kind")
	return cmd
}

func (a *app) summaryRecords(cmd *cobra.Command, paths []string) ([]records.TestRecord, error) {
	if len(paths) > 0 {
		var all []records.TestRecord
		for _, path := range paths {
			recs, err := a.loadResults(path)
			if err != nil && len(recs) == 0 {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			if err != nil {
				a.log.WithError(err).WithField("path", path).Warn("Some result files could not be read")
			}
			all = append(all, recs...)
		}
		return all, nil
	}

	ctx := cmd.Context()
	db, err := a.openDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	reference := a.reference()
	y, m, d := reference.Date()
	since := time.Date(y, m, d-(a.cfg.WindowDays-1), 0, 0, 0, 0, a.cfg.Location)
	recs, err := db.ListRecords(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, nil
}

func validateOutput(output string) error {
	if output != cli.TextOut && output != cli.JSONOut {
		return fmt.Errorf("output must be %s or %s, got %q", cli.TextOut, cli.JSONOut, output)
	}
	return nil
}
