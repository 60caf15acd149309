// Package store persists the work items the batch orchestrator drives
// through the governor: calendar events awaiting LLM analysis, plus the
// extraction result once processed.
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

// Event is one calendar event pending or finished analysis
type Event struct {
	ID        string
	UserID    string
	Title     string
	Notes     string
	StartTime time.Time
	Processed bool
	// Extracted holds the JSON the provider produced; empty when the event
	// was marked processed after a failure.
	Extracted   string
	ProcessedAt time.Time
}

// UserContext is the shared per-user context fetched once per batch run
type UserContext struct {
	UserID   string
	Name     string
	Contacts []string
}

// EventStore is the persistence collaborator used by the batch orchestrator
type EventStore interface {
	PendingEvents(ctx context.Context, userID string) ([]Event, error)
	UserContext(ctx context.Context, userID string) (UserContext, error)
	MarkProcessed(ctx context.Context, eventID, extracted string) error
}

// SQLiteStore is the SQLite-backed EventStore
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open creates or opens the event database at dbPath
func Open(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		start_time INTEGER NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT 0,
		extracted TEXT NOT NULL DEFAULT '',
		processed_at INTEGER,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_events_user_pending ON calendar_events(user_id, processed);
	CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AddUser inserts a user row
func (s *SQLiteStore) AddUser(ctx context.Context, userID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, name) VALUES (?, ?)`, userID, name)
	return err
}

// AddContact inserts a contact for a user
func (s *SQLiteStore) AddContact(ctx context.Context, userID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (user_id, name) VALUES (?, ?)`, userID, name)
	return err
}

// AddEvent inserts an unprocessed calendar event
func (s *SQLiteStore) AddEvent(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO calendar_events (id, user_id, title, notes, start_time)
	VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.Title, event.Notes, event.StartTime.Unix())
	return err
}

// PendingEvents returns the user's unprocessed events, oldest first
func (s *SQLiteStore) PendingEvents(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, title, notes, start_time
	FROM calendar_events
	WHERE user_id = ? AND processed = 0
	ORDER BY start_time ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var startTime int64
		if err := rows.Scan(&event.ID, &event.UserID, &event.Title, &event.Notes, &startTime); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.StartTime = time.Unix(startTime, 0)
		events = append(events, event)
	}
	return events, rows.Err()
}

// UserContext fetches the user's name and contacts in one pass so the
// orchestrator never re-fetches shared context per event
func (s *SQLiteStore) UserContext(ctx context.Context, userID string) (UserContext, error) {
	uc := UserContext{UserID: userID}

	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM users WHERE id = ?`, userID).Scan(&uc.Name)
	if err != nil {
		return uc, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM contacts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return uc, fmt.Errorf("failed to load contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return uc, fmt.Errorf("failed to scan contact: %w", err)
		}
		uc.Contacts = append(uc.Contacts, name)
	}
	return uc, rows.Err()
}

// MarkProcessed flags an event as processed and stores the extraction. An
// empty extracted string marks a failed analysis as done so it is not
// retried indefinitely.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, eventID, extracted string) error {
	result, err := s.db.ExecContext(ctx, `
	UPDATE calendar_events
	SET processed = 1, extracted = ?, processed_at = ?
	WHERE id = ?`, extracted, time.Now().Unix(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("event %s not found", eventID)
	}
	return nil
}

// Event returns a single event by ID
func (s *SQLiteStore) Event(ctx context.Context, eventID string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, user_id, title, notes, start_time, processed, extracted, COALESCE(processed_at, 0)
	FROM calendar_events WHERE id = ?`, eventID)

	var event Event
	var startTime, processedAt int64
	err := row.Scan(&event.ID, &event.UserID, &event.Title, &event.Notes,
		&startTime, &event.Processed, &event.Extracted, &processedAt)
	if err != nil {
		return nil, err
	}
	event.StartTime = time.Unix(startTime, 0)
	if processedAt > 0 {
		event.ProcessedAt = time.Unix(processedAt, 0)
	}
	return &event, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
