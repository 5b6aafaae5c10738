package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"DROWSY_MONITOR/go-detector/internal/models"
)

// LogStore is the durable, append-only session history: a single JSON file
// holding an ordered array of session summaries.
//
// Append is a read-modify-write over the whole file with no locking or
// versioning. Concurrent appends from multiple processes can lose updates;
// callers that finalize sessions from more than one process must serialize
// externally. A missing or unreadable file is treated as an empty history
// so the session being saved is never lost to old corruption.
type LogStore struct {
	path string
}

func NewLogStore(path string) *LogStore {
	return &LogStore{path: path}
}

func (s *LogStore) Path() string {
	return s.path
}

// Append loads the existing history, appends the summary and writes the
// whole sequence back.
func (s *LogStore) Append(summary models.SessionSummary) error {
	logs := s.load()
	logs = append(logs, summary)

	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session log: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session log: %w", err)
	}
	return nil
}

// LoadAll returns the full session history, oldest first. Missing or
// corrupt storage reads as empty.
func (s *LogStore) LoadAll() []models.SessionSummary {
	return s.load()
}

func (s *LogStore) load() []models.SessionSummary {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var logs []models.SessionSummary
	if err := json.Unmarshal(data, &logs); err != nil {
		log.Printf("session log %s unreadable, starting fresh: %v", s.path, err)
		return nil
	}
	return logs
}
