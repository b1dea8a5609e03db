package db

import (
	"fmt"
)

// runMigrations applies database migrations for existing databases
func (db *DB) runMigrations() error {
	// Migration 1: analyses.chat_id for databases created before chat support
	if err := db.migration001AddChatID(); err != nil {
		return fmt.Errorf("migration 001: %w", err)
	}

	return nil
}

// migration001AddChatID adds and backfills the chat_id column
func (db *DB) migration001AddChatID() error {
	var hasChatID bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('analyses')
		WHERE name='chat_id'
	`).Scan(&hasChatID)
	if err != nil {
		return err
	}

	if hasChatID {
		return nil
	}

	if _, err := db.conn.Exec(`ALTER TABLE analyses ADD COLUMN chat_id TEXT`); err != nil {
		return fmt.Errorf("add chat_id column: %w", err)
	}

	_, err = db.conn.Exec(`
		UPDATE analyses
		SET chat_id = json_extract(payload, '$.chat.id')
		WHERE chat_id IS NULL
	`)
	if err != nil {
		return fmt.Errorf("backfill chat_id: %w", err)
	}

	_, err = db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_analyses_chat ON analyses(chat_id)`)
	return err
}
