package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/pkg/metrics"
)

// SendChatMessage asks a follow-up question about a completed report. The
// question is appended immediately as pending; the reply is appended when it
// arrives. Only one message per chat may be in flight. If delivery fails the
// question stays in the chat flagged as failed.
func (o *Orchestrator) SendChatMessage(ctx context.Context, analysisID, chatID, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, apperr.Validation("chat", "message is empty")
	}

	sessionID, err := o.SessionID()
	if err != nil {
		return models.ChatMessage{}, err
	}

	o.mu.Lock()
	a, ok := o.history.Get(analysisID)
	if !ok {
		o.mu.Unlock()
		return models.ChatMessage{}, apperr.NotFound("chat", "analysis %s is not in history", analysisID)
	}
	if a.Status != models.StatusCompleted {
		o.mu.Unlock()
		return models.ChatMessage{}, apperr.Validation("chat", "chat is available once the analysis has completed (it is %s)", a.Status.Label())
	}
	if chatID == "" {
		chatID = a.ChatID()
	}
	if chatID == "" {
		o.mu.Unlock()
		return models.ChatMessage{}, apperr.Validation("chat", "analysis %s has no chat", analysisID)
	}
	if existing := a.ChatID(); existing != "" && existing != chatID {
		o.mu.Unlock()
		return models.ChatMessage{}, apperr.Validation("chat", "chat %s does not belong to analysis %s", chatID, analysisID)
	}
	if o.chatSending[chatID] {
		o.mu.Unlock()
		return models.ChatMessage{}, apperr.Validation("chat", "a message is already being sent")
	}

	question := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		State:     models.MessagePending,
		CreatedAt: o.now().UTC(),
	}
	if a.Chat == nil {
		a.Chat = &models.Chat{ID: chatID}
	} else if a.Chat.ID == "" {
		a.Chat.ID = chatID
	}
	a.Chat.Append(question)
	o.saveLocked(a)
	o.chatSending[chatID] = true
	o.mu.Unlock()

	o.publish(Event{Type: EventChatUpdated, AnalysisID: analysisID, Analysis: snapshot(a)})

	resp, sendErr := o.client.SendChatMessage(ctx, chatID, sessionID, text)

	o.mu.Lock()
	delete(o.chatSending, chatID)
	a, ok = o.history.Get(analysisID)
	if !ok || a.Chat == nil {
		o.mu.Unlock()
		if sendErr != nil {
			return models.ChatMessage{}, apperr.ChatSend("chat", sendErr)
		}
		return models.ChatMessage{}, apperr.NotFound("chat", "analysis %s was removed", analysisID)
	}

	if sendErr != nil {
		a.Chat.SetState(question.ID, models.MessageFailed)
		o.saveLocked(a)
		o.mu.Unlock()

		metrics.RecordChat("failed")
		o.logger.Info("chat message not delivered", zap.String("analysis_id", analysisID), zap.Error(sendErr))
		err := apperr.ChatSend("chat", sendErr)
		o.publish(Event{Type: EventChatUpdated, AnalysisID: analysisID, Analysis: snapshot(a), Err: err})
		return models.ChatMessage{}, err
	}

	reply := resp.Response
	reply.ID = uuid.NewString()
	reply.State = models.MessageSent
	if reply.Role == "" {
		reply.Role = models.RoleAssistant
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = o.now().UTC()
	}
	a.Chat.SetState(question.ID, models.MessageSent)
	a.Chat.Append(reply)
	o.saveLocked(a)
	o.mu.Unlock()

	metrics.RecordChat("ok")
	o.publish(Event{Type: EventChatUpdated, AnalysisID: analysisID, Analysis: snapshot(a)})
	return reply, nil
}

// LoadChat replaces the chat of an analysis with the server's copy. Local
// messages that never reached the server are kept at the end.
func (o *Orchestrator) LoadChat(ctx context.Context, analysisID string) (*models.Analysis, error) {
	a, ok := o.history.Get(analysisID)
	if !ok {
		return nil, apperr.NotFound("chat", "analysis %s is not in history", analysisID)
	}
	chatID := a.ChatID()
	if chatID == "" {
		return nil, apperr.Validation("chat", "analysis %s has no chat", analysisID)
	}

	sessionID, err := o.SessionID()
	if err != nil {
		return nil, err
	}
	msgs, err := o.client.GetChatMessages(ctx, chatID, sessionID)
	if err != nil {
		return nil, apperr.Wrap("chat", err)
	}

	o.mu.Lock()
	a, ok = o.history.Get(analysisID)
	if !ok || a.Chat == nil {
		o.mu.Unlock()
		return nil, apperr.NotFound("chat", "analysis %s was removed", analysisID)
	}
	var unsent []models.ChatMessage
	for _, m := range a.Chat.Messages {
		if m.State == models.MessagePending || m.State == models.MessageFailed {
			unsent = append(unsent, m)
		}
	}
	a.Chat.Messages = append(append([]models.ChatMessage(nil), msgs...), unsent...)
	seedExplanation(&a, o.now())
	o.saveLocked(a)
	o.mu.Unlock()

	o.publish(Event{Type: EventChatUpdated, AnalysisID: analysisID, Analysis: snapshot(a)})
	return snapshot(a), nil
}

// seedExplanation puts the report explanation in front of an empty chat.
func seedExplanation(a *models.Analysis, now time.Time) bool {
	if a.Status != models.StatusCompleted || a.FinalReport == nil {
		return false
	}
	explanation := strings.TrimSpace(a.FinalReport.Explanation)
	if explanation == "" {
		return false
	}
	if a.Chat == nil {
		a.Chat = &models.Chat{}
	}
	if len(a.Chat.Messages) > 0 {
		return false
	}
	a.Chat.Append(models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   explanation,
		CreatedAt: now.UTC(),
	})
	return true
}
