package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/poller"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause status polling in every running watch",
	Long: `Pause status polling in every running 'rentcheck watch' until
'rentcheck resume'. Analyses keep running on the server; their status is
picked up on resume.`,
	Args: cobra.NoArgs,
	RunE: runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume status polling",
	Args:  cobra.NoArgs,
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	path := a.pauseFile()
	if poller.PauseFileExists(path) {
		fmt.Fprintln(cmd.OutOrStdout(), "Polling is already paused.")
		return nil
	}
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		return fmt.Errorf("failed to create pause file: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Polling paused.")
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	path := a.pauseFile()
	if !poller.PauseFileExists(path) {
		fmt.Fprintln(cmd.OutOrStdout(), "Polling is not paused.")
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove pause file: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Polling resumed.")
	return nil
}
