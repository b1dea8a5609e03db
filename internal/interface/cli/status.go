package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/report"
)

var statusCmd = &cobra.Command{
	Use:   "status <analysis-id>",
	Short: "Check the status of an analysis once",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	id := args[0]
	if _, known := a.orch.Get(id); !known {
		// Pulls the analysis into history; polling stops when the app closes
		if _, err := a.orch.Open(ctx, id); err != nil {
			return err
		}
	}
	current, err := a.orch.PollOnce(ctx, id)
	if current == nil {
		return err
	}
	if err != nil && !apperr.Is(err, apperr.KindServer) && !apperr.Is(err, apperr.KindNetwork) {
		return err
	}

	out, rerr := report.Render(*current, a.cfg.ReportTemplate)
	if rerr != nil {
		return rerr
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
