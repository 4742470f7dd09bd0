// Package jsonfile implements the queue and status stores as JSON files
// shared between processes. Every access runs under a named cross-process
// lock and every write replaces the file atomically.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
)

// loadJSON decodes path into a fresh T. A missing, empty or corrupt file
// yields the zero value; corruption is logged at warn level.
func loadJSON[T any](logger arbor.ILogger, path string) (T, error) {
	var value T

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return value, nil
		}
		return value, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return value, nil
	}

	if err := json.Unmarshal(data, &value); err != nil {
		logger.Warn().
			Err(err).
			Str("path", path).
			Int("bytes", len(data)).
			Msg("State file is corrupt, treating as empty")
		var empty T
		return empty, nil
	}
	return value, nil
}

// writeJSON encodes v and atomically replaces path with it
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path. Readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
