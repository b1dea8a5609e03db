package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/internal/core/report"
)

var (
	historyLimit   int
	historySince   string
	historyRefresh bool
	historyStats   bool
)

var historyCmd = &cobra.Command{
	Use:     "history [query]",
	Aliases: []string{"list", "ls"},
	Short:   "List past analyses",
	Long: `List the analyses of this session, most recent first.

The cached list is shown immediately; --refresh merges in the server's list
first. The query narrows the list:
  status:completed, status:failed, status:running
  after:yesterday, before:2024-11-01
  any other words match the address or description

Examples:
  rentcheck history
  rentcheck history --since "last week"
  rentcheck history status:failed harbour --refresh`,
	RunE: runHistory,
}

var removeCmd = &cobra.Command{
	Use:     "remove <analysis-id>",
	Aliases: []string{"rm"},
	Short:   "Remove an analysis from local history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.orch.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(removeCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of analyses to display")
	historyCmd.Flags().StringVar(&historySince, "since", "", `Only analyses submitted since a date ("yesterday", "last week", 2024-11-01)`)
	historyCmd.Flags().BoolVar(&historyRefresh, "refresh", false, "Fetch the server's history first")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show counts per status")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(historyRefresh)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	list := a.orch.History()
	if historyRefresh {
		ctx, cancel := commandContext()
		defer cancel()

		refreshed, err := a.orch.LoadHistory(ctx)
		if err != nil {
			// Cached entries are still worth showing
			a.log.Info("history refresh failed", zap.Error(err))
			fmt.Fprintln(cmd.ErrOrStderr(), describeError(err))
		}
		list = refreshed
	}

	filter := ParseHistoryQuery(strings.Join(args, " "), time.Now())
	if historySince != "" {
		since, ok := ParseSince(historySince, time.Now())
		if !ok {
			return apperr.Validation("history", "could not understand --since %q", historySince)
		}
		filter.After, filter.HasAfter = since, true
	}

	var shown []models.Analysis
	for _, an := range list {
		if filter.Match(an) {
			shown = append(shown, an)
		}
	}
	total := len(shown)
	if historyLimit > 0 && len(shown) > historyLimit {
		shown = shown[:historyLimit]
	}

	if historyStats {
		sessionID, err := a.orch.SessionID()
		if err != nil {
			return err
		}
		stats, err := a.db.GetStats(sessionID)
		if err != nil {
			return fmt.Errorf("failed to read stats: %w", err)
		}
		printStats(out, stats.Total, stats.ByStatus, stats.Oldest, stats.Newest)
		fmt.Fprintln(out)
	}

	if total == 0 {
		if len(list) == 0 {
			fmt.Fprintln(out, "No analyses yet. Start with 'rentcheck extract'.")
		} else {
			fmt.Fprintln(out, "No analyses match.")
		}
		return nil
	}

	fmt.Fprintf(out, "Showing %d of %d analyses\n\n", len(shown), total)
	for _, an := range shown {
		fmt.Fprintln(out, report.Line(an))
	}
	return nil
}

func printStats(w io.Writer, total int, byStatus map[string]int, oldest, newest time.Time) {
	fmt.Fprintf(w, "Analyses: %s\n", humanize.Comma(int64(total)))
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-12s %d\n", models.Status(s).Label(), byStatus[s])
	}
	if !oldest.IsZero() {
		fmt.Fprintf(w, "First submitted %s, last %s\n", humanize.Time(oldest), humanize.Time(newest))
	}
}
