// Package report renders analyses as plain text for the terminal, export and
// MCP tool output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/dustin/go-humanize"

	"github.com/neilberkman/rentcheck/internal/core/config"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

// ScoreLabel describes a 0-100 score in words.
func ScoreLabel(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Fair"
	default:
		return "Poor"
	}
}

// Render fills tmpl with the analysis. An empty tmpl uses the built-in
// template.
func Render(a models.Analysis, tmpl string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = config.DefaultReportTemplate
	}
	out, err := mustache.RenderRaw(tmpl, true, templateData(a, time.Now()))
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}

func templateData(a models.Analysis, now time.Time) map[string]any {
	data := map[string]any{
		"id":           a.ID,
		"status":       a.Status.Label(),
		"address":      a.InputData.Address,
		"incomplete":   strings.Join(a.IncompleteFields, ", "),
		"error_detail": a.ErrorDetail,
	}
	if !a.CreatedAt.IsZero() {
		data["created"] = humanize.RelTime(a.CreatedAt, now, "ago", "from now")
	}
	if a.Location != nil {
		loc := fmt.Sprintf("%.5f, %.5f", a.Location.Latitude, a.Location.Longitude)
		if a.Location.FormattedAddress != "" {
			loc = a.Location.FormattedAddress + " (" + loc + ")"
		}
		data["location"] = loc
	}

	if r := a.FinalReport; r != nil {
		flags := make([]map[string]any, 0, len(r.Flags))
		for _, f := range r.Flags {
			flags = append(flags, map[string]any{"category": f.Category, "description": f.Description})
		}
		data["report"] = map[string]any{
			"authenticity_score": r.AuthenticityScore,
			"authenticity_label": ScoreLabel(r.AuthenticityScore),
			"quality_score":      r.QualityScore,
			"quality_label":      ScoreLabel(r.QualityScore),
			"sidebar_summary":    r.Summary,
			"explanation":        r.Explanation,
			"has_flags":          len(flags) > 0,
			"flags":              flags,
			"has_actions":        len(r.SuggestedActions) > 0,
			"suggested_actions":  r.SuggestedActions,
		}
	}
	return data
}

// Line is the one-line history entry for a.
func Line(a models.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-11s", a.ID, a.Status.Label())
	if !a.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "  %-14s", humanize.Time(a.CreatedAt))
	}
	switch {
	case a.FinalReport != nil:
		fmt.Fprintf(&b, "  auth %d/100  quality %d/100", a.FinalReport.AuthenticityScore, a.FinalReport.QualityScore)
	case a.ErrorDetail != "":
		b.WriteString("  " + truncate(a.ErrorDetail, 60))
	}
	if addr := a.InputData.Address; addr != "" {
		b.WriteString("  " + truncate(addr, 40))
	}
	return b.String()
}

// Transcript renders the chat of a as a plain conversation.
func Transcript(a models.Analysis) string {
	if a.Chat == nil || len(a.Chat.Messages) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range a.Chat.Messages {
		who := "assistant"
		if m.Role == models.RoleUser {
			who = "you"
		}
		switch m.State {
		case models.MessagePending:
			who += " (sending)"
		case models.MessageFailed:
			who += " (not delivered)"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
