// Package tui is the terminal watch view of a single analysis: live status
// while it runs, then the report and its chat.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/neilberkman/rentcheck/internal/core/analysis"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

// Orchestrator is what the watch view needs from *analysis.Orchestrator.
type Orchestrator interface {
	Subscribe() (<-chan analysis.Event, func())
	Get(id string) (*models.Analysis, bool)
	PausePolling()
	ResumePolling()
	StopPolling(id string)
	SendChatMessage(ctx context.Context, analysisID, chatID, text string) (models.ChatMessage, error)
}

// Options tunes the watch view.
type Options struct {
	ReportTemplate string
	ExitWhenDone   bool // quit as soon as the analysis finishes
	Compact        bool // hide the score summary above the report
}

type Model struct {
	orch        Orchestrator
	id          string
	opts        Options
	events      <-chan analysis.Event
	unsubscribe func()

	analysis *models.Analysis
	spinner  spinner.Model
	viewport viewport.Model
	input    textinput.Model
	sending  bool
	stopped  bool
	ready    bool
	width    int
	height   int
	err      error
}

// New creates a watch view for analysis id. The subscription is opened here
// so no event between construction and the first render is lost.
func New(o Orchestrator, id string, opts Options) Model {
	events, unsubscribe := o.Subscribe()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = progressStyle

	in := textinput.New()
	in.Placeholder = "Ask about this report..."
	in.CharLimit = 2000

	m := Model{
		orch:        o,
		id:          id,
		opts:        opts,
		events:      events,
		unsubscribe: unsubscribe,
		spinner:     sp,
		input:       in,
	}
	if a, ok := o.Get(id); ok {
		m.analysis = a
	}
	return m
}

// Analysis returns the last state the view saw.
func (m Model) Analysis() *models.Analysis {
	return m.analysis
}

func (m Model) Init() tea.Cmd {
	// Polling is paused whenever no view is open
	m.orch.ResumePolling()
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = m.bodyHeight()
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m.quit()
		case "s":
			if m.analysis != nil && m.analysis.Status.IsActive() && !m.stopped {
				m.orch.StopPolling(m.id)
				m.stopped = true
				m.refresh()
			}
			return m, nil
		case "c", "/":
			if m.analysis != nil && m.analysis.CanChat() {
				m.input.Focus()
				m.viewport.Height = m.bodyHeight()
				return m, textinput.Blink
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if msg.event.AnalysisID == m.id || msg.event.Type == analysis.EventHistoryChanged {
			if msg.event.Err != nil && msg.event.AnalysisID == m.id {
				m.err = msg.event.Err
			}
			m.refresh()
			if m.opts.ExitWhenDone && m.analysis != nil && m.analysis.Status.IsTerminal() {
				return m.quit()
			}
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case chatSentMsg:
		m.sending = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc":
		m.input.Blur()
		m.viewport.Height = m.bodyHeight()
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.sending || m.analysis == nil {
			return m, nil
		}
		m.sending = true
		m.input.Reset()
		return m, tea.Batch(sendChat(m.orch, m.id, m.analysis.ChatID(), text), m.spinner.Tick)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// quit pauses polling and ends the subscription before leaving.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.orch.PausePolling()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

func (m *Model) refresh() {
	if a, ok := m.orch.Get(m.id); ok {
		m.analysis = a
	}
	if m.ready {
		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(m.renderBody())
		if atBottom {
			m.viewport.GotoBottom()
		}
	}
}

func (m Model) bodyHeight() int {
	reserved := 4 // header and help line
	if m.input.Focused() {
		reserved += 2
	}
	if h := m.height - reserved; h > 1 {
		return h
	}
	return 1
}
