package jobs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/psdocling/internal/models"
)

// ErrFileNotFound is returned for unknown or disallowed output files
var ErrFileNotFound = errors.New("file not found")

// OutputFile is one generated file in a job's output directory
type OutputFile struct {
	JobID    string    `json:"jobId"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	URL      string    `json:"url"`
}

// ListFiles returns the generated files of every job, newest first. Only
// conversion output extensions are listed.
func (s *Service) ListFiles() ([]OutputFile, error) {
	files := []OutputFile{}

	jobDirs, err := os.ReadDir(s.options.OutputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return files, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	for _, jobDir := range jobDirs {
		if !jobDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.options.OutputDir, jobDir.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobDir.Name()).Msg("Failed to read job output directory")
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !models.IsOutputExtension(filepath.Ext(entry.Name())) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, OutputFile{
				JobID:    jobDir.Name(),
				Name:     entry.Name(),
				Size:     info.Size(),
				Modified: info.ModTime(),
				URL:      "/api/files/" + url.PathEscape(jobDir.Name()) + "/" + url.PathEscape(entry.Name()),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

// FilePath resolves a generated file, refusing anything outside the job's
// output directory or with a non-output extension
func (s *Service) FilePath(jobID, name string) (string, error) {
	if jobID == "" || name == "" ||
		strings.ContainsAny(jobID, `/\`) || strings.ContainsAny(name, `/\`) ||
		strings.Contains(jobID, "..") || strings.Contains(name, "..") {
		return "", ErrFileNotFound
	}
	if !models.IsOutputExtension(filepath.Ext(name)) {
		return "", ErrFileNotFound
	}

	root := s.outputDir(jobID)
	path := filepath.Join(root, name)
	rel, err := filepath.Rel(s.options.OutputDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrFileNotFound
	}
	if !fileExists(path) {
		return "", ErrFileNotFound
	}
	return path, nil
}
