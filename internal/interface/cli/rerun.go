package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rerunCmd = &cobra.Command{
	Use:   "rerun <analysis-id>",
	Short: "Start a new draft from a finished analysis",
	Long: `Copy the input of a finished analysis into the pending draft so it can be
edited and submitted again. The original analysis is left unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

func init() {
	rootCmd.AddCommand(rerunCmd)
}

func runRerun(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.orch.Rerun(args[0])
	if err != nil {
		return err
	}
	if err := a.saveDraft(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	printDraft(cmd.OutOrStdout(), data)
	fmt.Fprintln(cmd.OutOrStdout(), "\nEdit with 'rentcheck review', then 'rentcheck submit'.")
	return nil
}
