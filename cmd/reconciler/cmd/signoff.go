package cmd

import (
	"context"
	"fmt"
	"os"

	"statement-reconciliation/cmd/reconciler/config"
	"statement-reconciliation/internal/models"
	"statement-reconciliation/internal/reconciler"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Flags for the signoff command
var (
	signoffActor string
	signoffType  string
	signoffNotes string
)

// signoffCmd represents the signoff command
var signoffCmd = &cobra.Command{
	Use:   "signoff <statement-id>",
	Short: "Sign off a statement and record the acknowledgement",
	Long: `Signoff closes a statement. A full sign-off demands every issue resolved
and the net variance within the epsilon; a partial sign-off accepts a
residual variance but still refuses open issues. The acknowledgement
records who signed and which kind was used.

Examples:
  reconciler signoff 6f1c0b2e-... --actor alice --type full
  reconciler signoff 6f1c0b2e-... --actor alice --type partial --notes "FX residual accepted"`,

	Args: cobra.ExactArgs(1),
	RunE: runSignoff,
}

func init() {
	rootCmd.AddCommand(signoffCmd)

	signoffCmd.Flags().StringVar(&signoffActor, "actor", "", "who is signing off (required)")
	signoffCmd.Flags().StringVar(&signoffType, "type", "full", "sign-off type: full, partial")
	signoffCmd.Flags().StringVar(&signoffNotes, "notes", "", "free-form notes recorded on the acknowledgement")

	signoffCmd.MarkFlagRequired("actor")
}

func runSignoff(cmd *cobra.Command, args []string) error {
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

	ack, err := service.SignOff(ctx, reconciler.SignOffRequest{
		StatementID: statementID,
		ActorRef:    signoffActor,
		Type:        models.AckType(signoffType),
		Notes:       signoffNotes,
	})
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	fmt.Printf("Statement %s signed off (%s) by %s at %s\n",
		ack.StatementID, ack.Type, ack.ActorRef, ack.SignedAt.Format("2006-01-02 15:04:05"))
	return nil
}
