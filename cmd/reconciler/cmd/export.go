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

var exportOutputFile string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <statement-id>",
	Short: "Export the full reconciliation snapshot of a statement",
	Long: `Export assembles a point-in-time JSON snapshot of a statement: every
line joined with the match or issue that currently explains it, the
variance breakdown, and any acknowledgements. Works in every statement
status, including after sign-off.

Examples:
  reconciler export 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b
  reconciler export 6f1c0b2e-... --output-file report.json`,

	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutputFile, "output-file", "o", "", "output file path (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	export, err := service.ExportReconciliation(ctx, statementID)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	out := os.Stdout
	if exportOutputFile != "" {
		f, err := os.Create(exportOutputFile)
		if err != nil {
			os.Exit(handler.HandleError(err))
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		os.Exit(handler.HandleError(err))
	}

	if exportOutputFile != "" {
		fmt.Fprintf(os.Stderr, "Exported statement %s to %s\n", statementID, exportOutputFile)
	}
	return nil
}
