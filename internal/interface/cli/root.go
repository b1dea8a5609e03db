package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath      string
	logLevel    string
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rentcheck",
	Short: "Check rental listings for fraud",
	Long: `rentcheck - extract, review and submit rental listings for a fraud check

Paste a listing, review what was extracted, submit it for analysis, watch it
finish and ask follow-up questions about the report.

The analysis service URL is read from ~/.config/rentcheck/config.toml
(api_url) or the RENTCHECK_API_URL environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to history if no subcommand specified
		return historyCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.config/rentcheck/rentcheck.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}
