package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/testkube/quality-dashboard/internal/classifier"
	"github.com/testkube/quality-dashboard/internal/cli"
)

func newClassifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Diagnose a failure message and stack trace.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			message, _ := cmd.Flags().GetString("message")
			trace, _ := cmd.Flags().GetString("trace")
			traceFile, _ := cmd.Flags().GetString("trace-file")
			output, _ := cmd.Flags().GetString("output")
			if err := validateOutput(output); err != nil {
				return err
			}

			if traceFile != "" {
				data, err := os.ReadFile(traceFile)
				if err != nil {
					return fmt.Errorf("failed to read trace file: %w", err)
				}
				trace = string(data)
			}

			w := cli.NewWriter(cmd.OutOrStdout(), output, !color.NoColor)
			return w.WriteClassification(classifier.Classify(message, trace))
		},
	}

	cmd.Flags().StringP("message", "m", "", "Failure message")
	cmd.Flags().String("trace", "", "Stack trace")
	cmd.Flags().String("trace-file", "", "Read the stack trace from a file")
	cmd.Flags().StringP("output", "o", cli.TextOut, "Output format: text or json")
	return cmd
}
