package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cs_chatbot/pkg/conversation"
)

// FileSaver writes autosave snapshots as chat_<session>.csv under Dir.
type FileSaver struct {
	Dir string
}

// NewFileSaver creates a FileSaver rooted at dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir}
}

// Path returns the autosave file for a session.
func (s *FileSaver) Path(sessionID string) string {
	return filepath.Join(s.Dir, FileName(sessionID, "csv"))
}

// FileName returns chat_<session>.<ext>.
func FileName(sessionID, ext string) string {
	return fmt.Sprintf("chat_%s.%s", sessionID, ext)
}

// Save replaces the session's CSV file with the current transcript.
func (s *FileSaver) Save(ctx context.Context, sessionID string, turns []conversation.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := CSV(turns)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	path := s.Path(sessionID)
	tmp, err := os.CreateTemp(s.Dir, ".chat-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write autosave: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close autosave: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace autosave: %w", err)
	}

	slog.Debug("autosave_written", "path", path, "turns", len(turns))
	return nil
}

// WriteSnapshot writes both encodings next to each other and returns their paths.
func WriteSnapshot(dir, sessionID string, snap Snapshot) (csvPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("create export dir: %w", err)
	}
	csvPath = filepath.Join(dir, FileName(sessionID, "csv"))
	jsonPath = filepath.Join(dir, FileName(sessionID, "json"))
	if err := os.WriteFile(csvPath, snap.CSV, 0600); err != nil {
		return "", "", fmt.Errorf("write csv export: %w", err)
	}
	if err := os.WriteFile(jsonPath, snap.JSON, 0600); err != nil {
		return "", "", fmt.Errorf("write json export: %w", err)
	}
	return csvPath, jsonPath, nil
}
