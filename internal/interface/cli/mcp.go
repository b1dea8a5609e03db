package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/cmd/rentcheck/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start MCP server for rental checks",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

Tools: extract_listing, update_draft, submit_analysis, get_analysis,
list_history and ask_about_report. Submitted analyses are polled in the
background for as long as the server runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.restoreDraft(); err != nil {
			a.log.Warn("saved draft not restored", zap.Error(err))
		}

		ctx, cancel := commandContext()
		defer cancel()
		go func() {
			if err := a.orch.WatchPauseFile(ctx, a.pauseFile()); err != nil {
				a.log.Warn("pause file not watched", zap.Error(err))
			}
		}()

		return mcp.StartServer(mcp.Deps{
			Orchestrator:   a.orch,
			Drafts:         a.db,
			ReportTemplate: a.cfg.ReportTemplate,
			Version:        rootCmd.Version,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
