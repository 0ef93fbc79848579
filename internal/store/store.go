// Package store persists received event envelopes to SQLite so activity
// survives server restarts. Persistence is optional; the server runs
// without a store when no database path is configured.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Record is one persisted event.
type Record struct {
	ID        int64          `json:"id"`
	AgentID   string         `json:"agent_id"`
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	TS        time.Time      `json:"ts"`
}

// Store is a SQLite-backed event log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the event log at path.
func Open(path string) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id         INTEGER PRIMARY KEY,
	  ts_utc     INTEGER NOT NULL,
	  agent_id   TEXT    NOT NULL,
	  event_id   TEXT    NOT NULL,
	  event_type TEXT    NOT NULL,
	  message    TEXT,
	  data_json  TEXT    NOT NULL CHECK (json_valid(data_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts    ON events(ts_utc);
	CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id);
	CREATE INDEX IF NOT EXISTS idx_events_type  ON events(event_type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends one event.
func (s *Store) Insert(r Record) error {
	if r.AgentID == "" || r.EventType == "" {
		return fmt.Errorf("agent id and event type are required")
	}
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	ts := r.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = s.db.Exec(
		`INSERT INTO events(ts_utc, agent_id, event_id, event_type, message, data_json) VALUES(?,?,?,?,?,json(?))`,
		ts.UnixMilli(), r.AgentID, r.EventID, r.EventType, r.Message, string(jsonData),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// InsertBatch appends events in one transaction.
func (s *Store) InsertBatch(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO events(ts_utc, agent_id, event_id, event_type, message, data_json) VALUES(?,?,?,?,?,json(?))`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, r := range records {
		data := r.Data
		if data == nil {
			data = map[string]any{}
		}
		jsonData, err := json.Marshal(data)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		ts := r.TS
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.Exec(ts.UnixMilli(), r.AgentID, r.EventID, r.EventType, r.Message, string(jsonData)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Recent returns up to limit events for an agent, newest first. An empty
// agent id means all agents.
func (s *Store) Recent(agentID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, ts_utc, agent_id, event_id, event_type, message, data_json FROM events`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY ts_utc DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Record
	for rows.Next() {
		var r Record
		var ts int64
		var dataJSON string
		if err := rows.Scan(&r.ID, &ts, &r.AgentID, &r.EventID, &r.EventType, &r.Message, &dataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.TS = time.UnixMilli(ts)
		if dataJSON != "" && dataJSON != "{}" {
			_ = json.Unmarshal([]byte(dataJSON), &r.Data)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
