// -----------------------------------------------------------------------
// Job Service - Submission and lifecycle operations over the shared stores
// -----------------------------------------------------------------------

package jobs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/logs"
	"github.com/ternarybob/psdocling/internal/services/inspect"
)

// Options configures the job service
type Options struct {
	UploadsDir        string
	OutputDir         string
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// OptionsFromConfig builds service options from the application config
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		UploadsDir:        config.Storage.UploadsDir,
		OutputDir:         config.Storage.OutputDir,
		MaxUploadBytes:    int64(config.Upload.MaxSizeMB) * 1024 * 1024,
		AllowedExtensions: config.Upload.AllowedExtensions,
	}
}

// Service provides job submission and lifecycle management. It is used by the
// control server and the MCP server; the worker only talks to the stores.
type Service struct {
	queue      interfaces.QueueStorage
	status     interfaces.StatusStorage
	inspector  *inspect.Inspector
	jobLogs    *logs.Storage
	options    Options
	allowedExt map[string]bool
	validate   *validator.Validate
	logger     arbor.ILogger
}

// NewService creates a new job service. jobLogs may be nil.
func NewService(
	queue interfaces.QueueStorage,
	status interfaces.StatusStorage,
	inspector *inspect.Inspector,
	jobLogs *logs.Storage,
	options Options,
	logger arbor.ILogger,
) *Service {
	allowed := make(map[string]bool, len(options.AllowedExtensions))
	for _, ext := range options.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	return &Service{
		queue:      queue,
		status:     status,
		inspector:  inspector,
		jobLogs:    jobLogs,
		options:    options,
		allowedExt: allowed,
		validate:   validator.New(),
		logger:     logger,
	}
}

// uploadDir returns the directory holding a job's uploaded file
func (s *Service) uploadDir(id string) string {
	return filepath.Join(s.options.UploadsDir, id)
}

// outputDir returns the directory holding a job's conversion output
func (s *Service) outputDir(id string) string {
	return filepath.Join(s.options.OutputDir, id)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
