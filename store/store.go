// Package store is an optional SQLite audit log. It records chat turns
// and ingest events for operator inspection; writes happen off the user
// path and failures never abort a request.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ChatLog is one recorded chat turn.
type ChatLog struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Mode           string    `json:"mode"`
	SourceCount    int       `json:"source_count"`
	RetrievedCount int       `json:"retrieved_count"`
	ModelUsed      string    `json:"model_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// IngestLog is one recorded ingest attempt, successful or not.
type IngestLog struct {
	ID        int64     `json:"id"`
	DocID     string    `json:"doc_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // "file" or "url"
	Chunks    int       `json:"chunks"`
	Status    string    `json:"status"` // "ok" or "error"
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database holding the audit log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path, applies the base
// schema and runs pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return s, nil
}

// LogChat appends one chat turn to the log.
func (s *Store) LogChat(ctx context.Context, c ChatLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_log (conversation_id, question, answer, mode, source_count, retrieved_count, model_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ConversationID, c.Question, c.Answer, c.Mode, c.SourceCount, c.RetrievedCount, c.ModelUsed)
	return err
}

// LogIngest appends one ingest attempt to the log.
func (s *Store) LogIngest(ctx context.Context, in IngestLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_log (doc_id, name, kind, chunks, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.DocID, in.Name, in.Kind, in.Chunks, in.Status, in.Error)
	return err
}

// CountChats returns the number of recorded chat turns.
func (s *Store) CountChats(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_log").Scan(&n)
	return n, err
}

// RecentChats returns the n most recent chat turns, newest first.
func (s *Store) RecentChats(ctx context.Context, n int) ([]ChatLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, question, answer, mode, source_count, retrieved_count, model_used, created_at
		FROM chat_log ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatLog
	for rows.Next() {
		var c ChatLog
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.Question, &c.Answer, &c.Mode,
			&c.SourceCount, &c.RetrievedCount, &c.ModelUsed, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentIngests returns the n most recent ingest attempts, newest first.
func (s *Store) RecentIngests(ctx context.Context, n int) ([]IngestLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, name, kind, chunks, status, error, created_at
		FROM ingest_log ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IngestLog
	for rows.Next() {
		var in IngestLog
		if err := rows.Scan(&in.ID, &in.DocID, &in.Name, &in.Kind, &in.Chunks,
			&in.Status, &in.Error, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
