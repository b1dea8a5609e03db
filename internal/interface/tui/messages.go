package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/neilberkman/rentcheck/internal/core/analysis"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

type errMsg struct {
	err error
}

// eventMsg carries one orchestrator event into the update loop.
type eventMsg struct {
	event analysis.Event
}

// eventsClosedMsg is sent once the subscription ends.
type eventsClosedMsg struct{}

type chatSentMsg struct {
	reply models.ChatMessage
	err   error
}

// waitForEvent blocks until the next orchestrator event.
func waitForEvent(events <-chan analysis.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: e}
	}
}

func sendChat(o Orchestrator, analysisID, chatID, text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := o.SendChatMessage(context.Background(), analysisID, chatID, text)
		return chatSentMsg{reply: reply, err: err}
	}
}
