package db

func (db *DB) initSchema() error {
	schema := `
	-- Key/value settings: session id, pending draft, UI preferences
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Cached analysis history, most recent first by position
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		position INTEGER NOT NULL,
		payload TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_session ON analyses(session_id, position);
	CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
	`

	_, err := db.conn.Exec(schema)
	return err
}
