package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/analysis"
	"github.com/neilberkman/rentcheck/internal/core/report"
	"github.com/neilberkman/rentcheck/internal/core/session"
	"github.com/neilberkman/rentcheck/internal/interface/tui"
	"github.com/neilberkman/rentcheck/pkg/metrics"
)

var (
	watchPlain        bool
	watchExitWhenDone bool
	watchMetricsAddr  string
)

var watchCmd = &cobra.Command{
	Use:   "watch <analysis-id>",
	Short: "Follow an analysis until it finishes",
	Long: `Poll an analysis until it completes or fails, then show the report.

In a terminal this opens an interactive view where you can also chat about
the finished report. With --plain, or when output is not a terminal, status
changes are printed line by line.

'rentcheck pause' holds polling in every running watch until 'rentcheck resume'.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	submitCmd.Flags().BoolVar(&watchPlain, "plain", false, "With --watch, print status changes instead of opening the interactive view")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print status changes instead of opening the interactive view")
	watchCmd.Flags().BoolVar(&watchExitWhenDone, "exit", false, "Close the interactive view when the analysis finishes")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while watching (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	return watch(ctx, a, args[0])
}

func watch(ctx context.Context, a *app, id string) error {
	addr := watchMetricsAddr
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(addr, a)
		defer stop()
	}

	go func() {
		if err := a.orch.WatchPauseFile(ctx, a.pauseFile()); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("pause file watch failed", zap.Error(err))
		}
	}()

	if watchPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		return watchPlainOutput(ctx, a, id, os.Stdout)
	}

	// The view resumes polling when it opens, so start paused
	a.orch.PausePolling()
	if _, err := a.orch.Open(ctx, id); err != nil {
		return err
	}

	prefs, err := session.LoadPreferences(a.db)
	if err != nil {
		a.log.Warn("preferences not loaded", zap.Error(err))
	}
	switch prefs.Theme {
	case session.ThemeLight:
		lipgloss.SetHasDarkBackground(false)
	case session.ThemeDark:
		lipgloss.SetHasDarkBackground(true)
	}

	model := tui.New(a.orch, id, tui.Options{
		ReportTemplate: a.cfg.ReportTemplate,
		ExitWhenDone:   watchExitWhenDone,
		Compact:        prefs.SidebarCollapsed,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("watch view failed: %w", err)
	}

	// Leave the report on screen after the alt screen closes
	if m, ok := finalModel.(tui.Model); ok && m.Analysis() != nil && m.Analysis().Status.IsTerminal() {
		if text, err := report.Render(*m.Analysis(), a.cfg.ReportTemplate); err == nil {
			fmt.Print(text)
		}
	}
	return nil
}

// watchPlainOutput prints one line per status change until the analysis
// finishes.
func watchPlainOutput(ctx context.Context, a *app, id string, w io.Writer) error {
	events, unsubscribe := a.orch.Subscribe()
	defer unsubscribe()

	current, err := a.orch.Open(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s  %s\n", time.Now().Format("15:04:05"), current.Status.Label())

	last := current.Status
	for !current.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.AnalysisID != id || e.Analysis == nil {
				continue
			}
			current = e.Analysis
			if e.Err != nil {
				fmt.Fprintln(os.Stderr, describeError(e.Err))
			}
			if current.Status != last {
				fmt.Fprintf(w, "%s  %s\n", time.Now().Format("15:04:05"), current.Status.Label())
				last = current.Status
			}
		}
	}

	text, err := report.Render(*current, a.cfg.ReportTemplate)
	if err != nil {
		return err
	}
	fmt.Fprint(w, "\n"+text)
	return nil
}

func serveMetrics(addr string, a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

var _ tui.Orchestrator = (*analysis.Orchestrator)(nil)
