package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"statement-reconciliation/cmd/reconciler/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the recompute command
var (
	recomputeOutputFormat string
)

// recomputeCmd represents the recompute command
var recomputeCmd = &cobra.Command{
	Use:   "recompute <statement-id>",
	Short: "Run the matching passes over a statement",
	Long: `Recompute walks every unreconciled line of the statement through the
matching passes: exact document and amount, amount within tolerance, fuzzy
date, and bounded aggregate. High-confidence matches are confirmed
automatically, credible ones become suggestions, and lines nothing explains
get an issue.

Recompute is idempotent: re-running it without intervening changes creates
nothing new.

Examples:
  reconciler recompute 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b
  reconciler recompute 6f1c0b2e-... --dataset demo.json --output-format json
  reconciler recompute 6f1c0b2e-... --dsn "user:pass@tcp(db:3306)/recon"`,

	Args: cobra.ExactArgs(1),
	RunE: runRecompute,
}

func init() {
	rootCmd.AddCommand(recomputeCmd)

	recomputeCmd.Flags().StringVarP(&recomputeOutputFormat, "output-format", "f", "console", "output format: console, json")
	recomputeCmd.Flags().Float64("auto-confirm-threshold", 0.95, "minimum confidence for automatic confirmation")
	recomputeCmd.Flags().Float64("suggest-threshold", 0.5, "minimum confidence for a suggestion")
	recomputeCmd.Flags().Int("date-window", 5, "fuzzy date window in days")
	recomputeCmd.Flags().String("amount-tolerance", "0.01", "absolute amount tolerance")

	viper.BindPFlag("auto-confirm-threshold", recomputeCmd.Flags().Lookup("auto-confirm-threshold"))
	viper.BindPFlag("suggest-threshold", recomputeCmd.Flags().Lookup("suggest-threshold"))
	viper.BindPFlag("date-window", recomputeCmd.Flags().Lookup("date-window"))
	viper.BindPFlag("amount-tolerance", recomputeCmd.Flags().Lookup("amount-tolerance"))
}

func runRecompute(cmd *cobra.Command, args []string) error {
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

	result, err := service.Recompute(ctx, statementID)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if recomputeOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Statement %s\n", result.StatementID)
	fmt.Printf("  Lines processed:     %d\n", result.LinesProcessed)
	fmt.Printf("  Matches confirmed:   %d\n", result.MatchesCreated)
	fmt.Printf("  Suggestions created: %d\n", result.SuggestionsCreated)
	fmt.Printf("  Issues opened:       %d\n", result.IssuesCreated)
	fmt.Printf("  Lines skipped:       %d\n", result.LinesSkipped)
	fmt.Printf("  Elapsed:             %s\n", result.Elapsed)
	if len(result.LineErrors) > 0 {
		fmt.Printf("  Line errors:\n")
		for id, msg := range result.LineErrors {
			fmt.Printf("    %s: %s\n", id, msg)
		}
	}
	return nil
}
