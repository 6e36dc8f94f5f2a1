package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"statement-reconciliation/cmd/reconciler/config"
	"statement-reconciliation/internal/server"
	"statement-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation API over HTTP",
	Long: `Serve exposes recompute, matching actions, issue resolution, variance,
sign-off, and export as an HTTP API. Shuts down gracefully on SIGINT or
SIGTERM.

Examples:
  reconciler serve --addr :8080 --dsn "user:pass@tcp(db:3306)/recon"
  reconciler serve --addr 127.0.0.1:9090 --dataset demo.json`,

	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := config.BuildStore(ctx)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	service, err := config.BuildService(st)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	srv := server.New(service, logger.GetGlobalLogger())
	if err := srv.Run(ctx, serveAddr); err != nil {
		os.Exit(handler.HandleError(err))
	}
	return nil
}
