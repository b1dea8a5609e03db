package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/report"
)

var (
	exportOutput string
	exportCopy   bool
	exportChat   bool
)

var exportCmd = &cobra.Command{
	Use:   "export <analysis-id>",
	Short: "Export a report as text",
	Long: `Render the report of an analysis with the report template
(~/.config/rentcheck/report.mustache overrides the built-in one).

By default the report is printed. Use --output to write a file or --copy to
put it on the clipboard.

Examples:
  rentcheck export 3f2a...
  rentcheck export 3f2a... -o report.md --chat
  rentcheck export 3f2a... --copy`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path")
	exportCmd.Flags().BoolVar(&exportCopy, "copy", false, "Copy the report to the clipboard")
	exportCmd.Flags().BoolVar(&exportChat, "chat", false, "Append the chat transcript")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	an, ok := a.orch.Get(args[0])
	if !ok {
		return apperr.NotFound("export", "analysis %s is not in history; run 'rentcheck history --refresh'", args[0])
	}

	text, err := report.Render(*an, a.cfg.ReportTemplate)
	if err != nil {
		return err
	}
	if exportChat {
		if transcript := report.Transcript(*an); transcript != "" {
			text += "\n## Chat\n\n" + transcript
		}
	}

	switch {
	case exportOutput != "":
		path := exportOutput
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported report to: %s\n", path)
	case exportCopy:
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Report copied to clipboard.")
	default:
		fmt.Fprint(cmd.OutOrStdout(), text)
	}
	return nil
}
