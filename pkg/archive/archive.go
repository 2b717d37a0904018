// Package archive persists transcript snapshots in a local SQLite database.
// It is the alternative autosave target to the CSV file writer.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cs_chatbot/pkg/conversation"

	// pure-Go driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

// savedAtLayout sorts lexically in time order.
const savedAtLayout = "2006-01-02T15:04:05.000000000"

// ErrNotFound is returned by Load for unknown sessions.
var ErrNotFound = errors.New("session not found")

// SessionInfo summarizes one archived session.
type SessionInfo struct {
	ID      string
	SavedAt time.Time
	Turns   int
}

// Store is a SQLite-backed transcript archive. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the archive at path and applies pending migrations.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("archive: create dir: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open %q: %w", path, err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping %q: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("archive_opened", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot of sessionID with turns.
func (s *Store) Save(ctx context.Context, sessionID string, turns []conversation.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	savedAt := s.now().UTC().Format(savedAtLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, saved_at) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`,
		sessionID, savedAt,
	); err != nil {
		return fmt.Errorf("archive: upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("archive: clear turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO turns (session_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive: prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range turns {
		if _, err := stmt.ExecContext(ctx, sessionID, i, string(t.Role), t.Content, t.FormatTimestamp()); err != nil {
			return fmt.Errorf("archive: insert turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	slog.Debug("archive_saved", "session_id", sessionID, "turns", len(turns))
	return nil
}

// Load returns the stored turns of sessionID in order.
func (s *Store) Load(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archive: %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: lookup session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, timestamp FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: query turns: %w", err)
	}
	defer rows.Close()

	var turns []conversation.Turn
	for rows.Next() {
		var role, content, ts string
		if err := rows.Scan(&role, &content, &ts); err != nil {
			return nil, fmt.Errorf("archive: scan turn: %w", err)
		}
		r, err := conversation.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		parsed, err := conversation.ParseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		turns = append(turns, conversation.Turn{Role: r, Content: content, Timestamp: parsed})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate turns: %w", err)
	}
	return turns, nil
}

// Sessions lists archived sessions, most recently saved first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.saved_at, COUNT(t.seq)
		FROM sessions s
		LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id, s.saved_at
		ORDER BY s.saved_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("archive: query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var savedAt string
		if err := rows.Scan(&info.ID, &savedAt, &info.Turns); err != nil {
			return nil, fmt.Errorf("archive: scan session: %w", err)
		}
		info.SavedAt, err = time.Parse(savedAtLayout, savedAt)
		if err != nil {
			return nil, fmt.Errorf("archive: parse saved_at: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate sessions: %w", err)
	}
	return out, nil
}

// Delete removes a session and its turns.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("archive: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("archive: %q: %w", sessionID, ErrNotFound)
	}
	return nil
}
