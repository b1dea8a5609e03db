package cli

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/neilberkman/rentcheck/internal/core/models"
)

// HistoryFilter narrows the history listing.
type HistoryFilter struct {
	Status    models.Status
	Text      string    // matched against address and description
	After     time.Time // only analyses submitted after this time
	Before    time.Time
	HasAfter  bool
	HasBefore bool
}

// ParseHistoryQuery extracts filters from a query string.
// Supports:
//   - status:completed, status:failed, status:running
//   - after:yesterday, before:2024-11-01, since:"last week"
//   - any other words match the address or description
func ParseHistoryQuery(query string, now time.Time) HistoryFilter {
	filter := HistoryFilter{}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	var textParts []string
	for _, token := range strings.Fields(query) {
		key, value, ok := strings.Cut(token, ":")
		if !ok {
			textParts = append(textParts, token)
			continue
		}
		switch key {
		case "status":
			if st, ok := models.ParseStatus(value); ok {
				filter.Status = st
			}
		case "after", "since", "date":
			if parsed := parseDate(w, strings.ReplaceAll(value, "-", " "), now); parsed != nil {
				filter.After = *parsed
				filter.HasAfter = true
			}
		case "before":
			if parsed := parseDate(w, strings.ReplaceAll(value, "-", " "), now); parsed != nil {
				filter.Before = *parsed
				filter.HasBefore = true
			}
		default:
			textParts = append(textParts, token)
		}
	}

	filter.Text = strings.Join(textParts, " ")
	return filter
}

// ParseSince parses a natural-language or calendar date such as "yesterday",
// "last week" or "2024-11-01".
func ParseSince(expr string, now time.Time) (time.Time, bool) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	if parsed := parseDate(w, expr, now); parsed != nil {
		return *parsed, true
	}
	return time.Time{}, false
}

// parseDate attempts to parse a date string using natural language parsing
func parseDate(w *when.Parser, dateStr string, now time.Time) *time.Time {
	// Calendar formats first, so "2024-11-01" is not read as a time of day
	formats := []string{
		"2006-01-02",
		"2006 01 02",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006/01/02",
		"01/02/2006",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, dateStr, now.Location()); err == nil {
			return &t
		}
	}

	result, err := w.Parse(dateStr, now)
	if err == nil && result != nil {
		return &result.Time
	}
	return nil
}

// Match reports whether a passes the filter.
func (f HistoryFilter) Match(a models.Analysis) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.HasAfter && a.CreatedAt.Before(f.After) {
		return false
	}
	if f.HasBefore && !a.CreatedAt.Before(f.Before) {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		hay := strings.ToLower(a.InputData.Address + " " + a.InputData.Description)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}
