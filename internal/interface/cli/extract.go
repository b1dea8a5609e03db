package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

var extractFromClipboard bool

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract listing details from pasted text",
	Long: `Send the raw text of a rental listing to the analysis service and keep
the structured result as the pending draft.

The text is read from a file, from stdin ("-" or no argument), or from the
clipboard with --from-clipboard. Review the draft with 'rentcheck review'
and send it with 'rentcheck submit'.

Examples:
  rentcheck extract listing.txt
  pbpaste | rentcheck extract
  rentcheck extract --from-clipboard`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractFromClipboard, "from-clipboard", false, "Read the listing text from the clipboard")
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, err := readListing(args)
	if err != nil {
		return err
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	spinner := NewSpinner("Extracting listing details...")
	spinner.Start()
	data, err := a.orch.Extract(ctx, text)
	spinner.Stop()
	if err != nil {
		return err
	}

	if err := a.saveDraft(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	printDraft(cmd.OutOrStdout(), data)
	return nil
}

func readListing(args []string) (string, error) {
	if extractFromClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("failed to read clipboard: %w", err)
		}
		return text, nil
	}

	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read listing: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", apperr.Validation("extract", "no listing text given")
	}
	return string(data), nil
}

func printDraft(w io.Writer, data models.ExtractedData) {
	out, _ := json.MarshalIndent(data, "", "  ")
	fmt.Fprintln(w, string(out))

	if missing := data.MissingEssentials(); len(missing) > 0 {
		fmt.Fprintf(w, "\nMissing: %s\n", strings.Join(missing, ", "))
		if len(missing) == 3 {
			fmt.Fprintln(w, "Add at least one of these with 'rentcheck review --set' before submitting.")
		}
	}
}
