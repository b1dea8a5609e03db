package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
)

var submitWatch bool

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the pending draft for analysis",
	Long: `Submit the pending draft for a fraud check.

At least one of address, description or price must be present. The new
analysis is added to history; use --watch to follow it until it finishes.`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "Watch the analysis until it finishes")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.restoreDraft()
	if err != nil {
		return fmt.Errorf("failed to load draft: %w", err)
	}
	if !ok {
		return apperr.Validation("submit", "there is no pending draft; run 'rentcheck extract' first")
	}

	ctx, cancel := commandContext()
	defer cancel()

	spinner := NewSpinner("Submitting...")
	spinner.Start()
	submitted, err := a.orch.Submit(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}

	if err := a.saveDraft(); err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Submitted analysis %s (%s)\n", submitted.ID, submitted.Status.Label())
	if len(submitted.IncompleteFields) > 0 {
		fmt.Fprintf(out, "Submitted without: %s\n", strings.Join(submitted.IncompleteFields, ", "))
	}

	if submitWatch {
		return watch(ctx, a, submitted.ID)
	}
	fmt.Fprintf(out, "Follow it with: rentcheck watch %s\n", submitted.ID)
	return nil
}
