package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neilberkman/rentcheck/internal/core/models"
)

// SaveHistory replaces the cached history of a session with list, keeping
// its order.
func (db *DB) SaveHistory(sessionID string, list []models.Analysis) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM analyses WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO analyses (id, session_id, status, created_at, position, payload, chat_id, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			status = excluded.status,
			position = excluded.position,
			payload = excluded.payload,
			chat_id = excluded.chat_id,
			saved_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range list {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode analysis %s: %w", a.ID, err)
		}
		var chatID sql.NullString
		if id := a.ChatID(); id != "" {
			chatID = sql.NullString{String: id, Valid: true}
		}
		_, err = stmt.Exec(a.ID, sessionID, string(a.Status), a.CreatedAt.UTC().Format(time.RFC3339Nano), i, string(payload), chatID)
		if err != nil {
			return fmt.Errorf("insert analysis %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// LoadHistory returns the cached history of a session, most recent first.
func (db *DB) LoadHistory(sessionID string) ([]models.Analysis, error) {
	rows, err := db.conn.Query(`
		SELECT payload FROM analyses
		WHERE session_id = ?
		ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Analysis
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a models.Analysis
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			// A corrupt row should not hide the rest of the history
			continue
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// GetAnalysis returns one cached analysis, or nil when it is not cached.
func (db *DB) GetAnalysis(id string) (*models.Analysis, error) {
	var payload string
	err := db.conn.QueryRow(`SELECT payload FROM analyses WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a models.Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return &a, nil
}
