package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/internal/core/report"
)

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewHeader() + "\n")
	b.WriteString(strings.Repeat("─", max(m.width, 1)) + "\n")
	b.WriteString(m.viewport.View() + "\n")
	if m.input.Focused() {
		b.WriteString(m.input.View() + "\n\n")
	}
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m Model) viewHeader() string {
	title := titleStyle.Render("Rental check " + m.id)
	if m.analysis == nil {
		return title + "  " + metaStyle.Render("loading...")
	}
	parts := []string{title, statusBadge(m.analysis.Status)}
	if m.analysis.Status.IsActive() {
		parts = append(parts, m.spinner.View())
	}
	if !m.analysis.CreatedAt.IsZero() {
		parts = append(parts, metaStyle.Render("submitted "+humanize.Time(m.analysis.CreatedAt)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) viewFooter() string {
	var line string
	switch {
	case m.sending:
		line = m.spinner.View() + " waiting for a reply..."
	case m.err != nil:
		line = errorStyle.Render(errorText(m.err))
	}

	keys := "q quit • ↑/↓ scroll"
	if m.input.Focused() {
		keys = "enter send • esc stop typing"
	} else if m.analysis != nil && m.analysis.CanChat() {
		keys += " • c ask a question"
	} else if m.analysis != nil && m.analysis.Status.IsActive() && !m.stopped {
		keys += " • s stop checking"
	}
	if line != "" {
		return line + "\n" + helpStyle.Render(keys)
	}
	return helpStyle.Render(keys)
}

func (m Model) renderBody() string {
	a := m.analysis
	if a == nil {
		return metaStyle.Render("Waiting for the analysis to appear in history...")
	}
	width := max(m.width-2, 20)

	var b strings.Builder
	if a.Status.IsActive() {
		b.WriteString(fmt.Sprintf("%s is %s. This view updates as the status changes.\n",
			a.ID, strings.ToLower(a.Status.Label())))
		if m.stopped {
			b.WriteString(metaStyle.Render("No longer checking for updates. Run 'rentcheck watch "+a.ID+"' to resume.") + "\n")
		}
		if len(a.IncompleteFields) > 0 {
			b.WriteString(metaStyle.Render("Submitted without: "+strings.Join(a.IncompleteFields, ", ")) + "\n")
		}
		return wordwrap.String(b.String(), width)
	}

	if r := a.FinalReport; r != nil && !m.opts.Compact {
		b.WriteString(fmt.Sprintf("Authenticity %s   Quality %s\n\n",
			scoreStyle(r.AuthenticityScore).Render(fmt.Sprintf("%d/100 %s", r.AuthenticityScore, report.ScoreLabel(r.AuthenticityScore))),
			scoreStyle(r.QualityScore).Render(fmt.Sprintf("%d/100 %s", r.QualityScore, report.ScoreLabel(r.QualityScore))),
		))
	}

	text, err := report.Render(*a, m.opts.ReportTemplate)
	if err != nil {
		text = "Could not render report: " + err.Error()
	}
	b.WriteString(wordwrap.String(text, width))

	if a.Chat != nil && len(a.Chat.Messages) > 0 {
		b.WriteString("\n" + titleStyle.Render("Chat") + "\n\n")
		for _, msg := range a.Chat.Messages {
			b.WriteString(renderMessage(msg, width) + "\n\n")
		}
	}
	return b.String()
}

func renderMessage(msg models.ChatMessage, width int) string {
	label := assistantStyle.Render("ASSISTANT")
	if msg.Role == models.RoleUser {
		label = userStyle.Render("YOU")
	}
	switch msg.State {
	case models.MessagePending:
		label += " " + metaStyle.Render("sending...")
	case models.MessageFailed:
		label += " " + undeliveredStyle.Render("not delivered")
	}
	return label + "\n" + wordwrap.String(msg.Content, width)
}

func statusBadge(s models.Status) string {
	var style lipgloss.Style
	switch s {
	case models.StatusPending:
		style = pendingStyle
	case models.StatusInProgress:
		style = progressStyle
	case models.StatusCompleted:
		style = completedStyle
	default:
		style = failedStyle
	}
	return style.Render(strings.ToUpper(s.Label()))
}

func scoreStyle(score int) lipgloss.Style {
	switch {
	case score >= 70:
		return scoreGoodStyle
	case score >= 50:
		return scoreFairStyle
	default:
		return scorePoorStyle
	}
}

func errorText(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindChatSend:
		return "Message not delivered. Press c to try again."
	case apperr.KindTimeout:
		return "Stopped checking for updates: " + err.Error()
	}
	return err.Error()
}
