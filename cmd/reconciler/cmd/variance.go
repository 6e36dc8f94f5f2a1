package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"statement-reconciliation/cmd/reconciler/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var varianceOutputFormat string

// varianceCmd represents the variance command
var varianceCmd = &cobra.Command{
	Use:   "variance <statement-id>",
	Short: "Show the current variance breakdown of a statement",
	Long: `Variance totals the statement's matched and outstanding lines and
reports the net variance: opening balance plus everything still
unexplained. A statement reconciles when the net variance is within the
configured epsilon and no issues remain open.

Examples:
  reconciler variance 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b
  reconciler variance 6f1c0b2e-... --output-format json`,

	Args: cobra.ExactArgs(1),
	RunE: runVariance,
}

func init() {
	rootCmd.AddCommand(varianceCmd)

	varianceCmd.Flags().StringVarP(&varianceOutputFormat, "output-format", "f", "console", "output format: console, json")
}

func runVariance(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	statementID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid statement ID %q\n", args[0])
		os.Exit(2)
	}

	ctx := context.Background()
	st, err := config.BuildStore(ctx)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	service, err := config.BuildService(st)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	breakdown, err := service.ComputeVariance(ctx, statementID)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if varianceOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(breakdown)
	}

	fmt.Printf("Statement %s\n", breakdown.StatementID)
	fmt.Printf("  Opening balance:    %s\n", breakdown.OpeningBalance)
	fmt.Printf("  Total matched:      %s (%d lines)\n", breakdown.TotalMatched, breakdown.MatchedLines)
	fmt.Printf("  Total outstanding:  %s (%d lines)\n", breakdown.TotalOutstanding, breakdown.OutstandingLines)
	fmt.Printf("  Resolved lines:     %d\n", breakdown.ResolvedLines)
	fmt.Printf("  Open issues:        %d\n", breakdown.OpenIssues)
	fmt.Printf("  Net variance:       %s\n", breakdown.NetVariance)
	return nil
}
