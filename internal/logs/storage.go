// Package logs captures the worker's per-job log lines so the control
// server can show them next to the job record.
package logs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/ternarybob/psdocling/internal/models"
)

var validJobID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Storage keeps one JSON-lines file per job. Only the worker appends; other
// processes read.
type Storage struct {
	dir string
	mu  sync.Mutex
}

// NewStorage creates the log directory if needed
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job log directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

func (s *Storage) path(jobID string) (string, error) {
	if !validJobID.MatchString(jobID) {
		return "", fmt.Errorf("invalid job ID %q", jobID)
	}
	return filepath.Join(s.dir, jobID+".log"), nil
}

// AppendLogs appends entries to the job's log file
func (s *Storage) AppendLogs(jobID string, entries []models.JobLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	path, err := s.path(jobID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open job log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to write job log: %w", err)
		}
	}
	return writer.Flush()
}

// GetLogs returns the last limit entries of a job, oldest first. A job
// without logs returns an empty slice. Lines that do not decode are skipped.
func (s *Storage) GetLogs(jobID string, limit int) ([]models.JobLogEntry, error) {
	path, err := s.path(jobID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.JobLogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	defer file.Close()

	entries := []models.JobLogEntry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry models.JobLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job log: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// DeleteLogs removes the job's log file
func (s *Storage) DeleteLogs(jobID string) error {
	path, err := s.path(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete job log: %w", err)
	}
	return nil
}
