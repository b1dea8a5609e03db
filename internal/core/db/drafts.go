package db

import (
	"encoding/json"
	"fmt"

	"github.com/neilberkman/rentcheck/internal/core/models"
)

const (
	draftKey       = "draft"
	draftChatIDKey = "draft_chat_id"
)

// SaveDraft stores the pending draft so separate CLI invocations can review
// and submit it.
func (db *DB) SaveDraft(data models.ExtractedData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return db.SetSetting(draftKey, string(payload))
}

// LoadDraft returns the pending draft, or nil when there is none.
func (db *DB) LoadDraft() (*models.ExtractedData, error) {
	payload, err := db.GetSetting(draftKey)
	if err != nil || payload == "" {
		return nil, err
	}
	var data models.ExtractedData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &data, nil
}

// SaveDraftChatID stores the chat opened by extraction so it follows the
// draft into the submitted analysis. An empty id removes it.
func (db *DB) SaveDraftChatID(chatID string) error {
	if chatID == "" {
		return db.DeleteSetting(draftChatIDKey)
	}
	return db.SetSetting(draftChatIDKey, chatID)
}

// LoadDraftChatID returns the chat id saved with the draft, if any.
func (db *DB) LoadDraftChatID() (string, error) {
	return db.GetSetting(draftChatIDKey)
}

// ClearDraft discards the pending draft and its chat id.
func (db *DB) ClearDraft() error {
	if err := db.DeleteSetting(draftKey); err != nil {
		return err
	}
	return db.DeleteSetting(draftChatIDKey)
}
