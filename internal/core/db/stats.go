package db

import (
	"database/sql"
	"time"
)

// Stats summarizes the cached history of a session
type Stats struct {
	Total    int
	ByStatus map[string]int
	Oldest   time.Time
	Newest   time.Time
}

// GetStats returns counts per status and the submission date range
func (db *DB) GetStats(sessionID string) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int)}

	rows, err := db.conn.Query(`
		SELECT status, COUNT(*) FROM analyses
		WHERE session_id = ?
		GROUP BY status
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total == 0 {
		return stats, nil
	}

	var minCreated, maxCreated sql.NullString
	err = db.conn.QueryRow(`
		SELECT MIN(created_at), MAX(created_at) FROM analyses WHERE session_id = ?
	`, sessionID).Scan(&minCreated, &maxCreated)
	if err != nil {
		return nil, err
	}
	stats.Oldest = parseTime(minCreated)
	stats.Newest = parseTime(maxCreated)

	return stats, nil
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
