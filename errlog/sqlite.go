package errlog

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteSink persists error entries to a SQLite database.
//
// The database is configured with WAL mode for concurrent read access, a
// busy timeout for lock contention, and a single writer connection to avoid
// SQLITE_BUSY errors. Inserts are idempotent on entry id.
type SQLiteSink struct {
	db *sql.DB
}

var _ Sink = (*SQLiteSink)(nil)

// OpenSQLite creates or opens the sink database at the given path.
// Safe to call multiple times against the same file.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open error sink: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect error sink: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply error sink schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Record implements Sink. Duplicate entry ids are silently ignored.
func (s *SQLiteSink) Record(e Entry) error {
	contextJSON := []byte("{}")
	if e.Context != nil {
		var err error
		contextJSON, err = json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("record entry %s: %w", e.ID, err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO error_entries (id, type, message, context, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.Type,
		e.Message,
		string(contextJSON),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record entry %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteSink) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, type, message, context, created_at
		FROM error_entries
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read error sink: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var contextJSON, createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &contextJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan error entry: %w", err)
		}
		if err := json.Unmarshal([]byte(contextJSON), &e.Context); err != nil {
			return nil, fmt.Errorf("decode context for %s: %w", e.ID, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("decode timestamp for %s: %w", e.ID, err)
		}
		e.Timestamp = ts
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
