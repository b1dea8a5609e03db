package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

var (
	reviewSet         []string
	reviewAddImage    []string
	reviewRemoveImage []string
	reviewDiscard     bool
	reviewAddress     string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Show or edit the pending draft",
	Long: `Show the pending draft, or edit it before submitting.

Fields are set by dotted path. JSON objects and arrays are decoded, null
clears a field, anything else is taken as text.

Examples:
  rentcheck review
  rentcheck review --address "12 Harbour St"
  rentcheck review --set price_details.cleaning_fee='$40' --set number_of_people=3
  rentcheck review --add-image https://example.com/photo.jpg
  rentcheck review --discard`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().StringArrayVar(&reviewSet, "set", nil, "Set a field: path=value (repeatable)")
	reviewCmd.Flags().StringArrayVar(&reviewAddImage, "add-image", nil, "Attach an image URL (repeatable)")
	reviewCmd.Flags().StringArrayVar(&reviewRemoveImage, "remove-image", nil, "Remove an attached image URL (repeatable)")
	reviewCmd.Flags().BoolVar(&reviewDiscard, "discard", false, "Discard the pending draft")
	reviewCmd.Flags().StringVar(&reviewAddress, "address", "", "Set the listing address")
}

func runReview(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if reviewDiscard {
		a.orch.Reset()
		if err := a.saveDraft(); err != nil {
			return fmt.Errorf("failed to discard draft: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Draft discarded.")
		return nil
	}

	ok, err := a.restoreDraft()
	if err != nil {
		return fmt.Errorf("failed to load draft: %w", err)
	}
	if !ok {
		if len(reviewSet) == 0 && reviewAddress == "" {
			return apperr.Validation("review", "there is no pending draft; run 'rentcheck extract' first")
		}
		// Manual entry without extraction
		if err := a.orch.LoadDraft(models.ExtractedData{}); err != nil {
			return err
		}
	}

	for _, assignment := range reviewSet {
		path, raw, found := strings.Cut(assignment, "=")
		if !found {
			return apperr.Validation("review", "expected path=value, got %q", assignment)
		}
		if err := a.orch.UpdateDraft(path, parseValue(raw)); err != nil {
			return err
		}
	}
	if reviewAddress != "" {
		if err := a.orch.TypeAddress(reviewAddress); err != nil {
			return err
		}
		a.orch.FlushAddress()
	}
	for _, u := range reviewRemoveImage {
		if err := a.orch.RemoveImageURL(u); err != nil {
			return err
		}
	}
	for _, u := range reviewAddImage {
		if err := a.orch.AddImageURL(u); err != nil {
			return err
		}
	}

	if err := a.saveDraft(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	if draft := a.orch.Draft(); draft != nil {
		printDraft(cmd.OutOrStdout(), *draft)
	}
	return nil
}

// parseValue decodes JSON objects, arrays and null and keeps everything
// else as text, so phone numbers and prices are not read as numbers.
func parseValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}
