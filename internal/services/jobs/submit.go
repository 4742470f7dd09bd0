package jobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/inspect"
)

// JobOptions are the per-job conversion settings chosen by the client.
// Nil fields keep the value already on the record.
type JobOptions struct {
	ExportFormat string                  `json:"exportFormat,omitempty"`
	EmbedImages  *bool                   `json:"embedImages,omitempty"`
	Enrichment   *models.Enrichment      `json:"enrichment,omitempty"`
	Chunking     *models.ChunkingOptions `json:"chunking,omitempty" validate:"omitempty"`
	Printable    *bool                   `json:"printable,omitempty"`
}

// UploadRequest is the JSON body of an upload: the file travels base64 encoded
type UploadRequest struct {
	FileName  string `json:"fileName" validate:"required,max=255"`
	Content   string `json:"content" validate:"required"`
	AutoStart bool   `json:"autoStart"`
	JobOptions
}

// SubmitRequest is a decoded upload
type SubmitRequest struct {
	FileName  string
	Content   io.Reader
	Options   JobOptions
	AutoStart bool
}

// ValidateFileName rejects names that could escape the job's upload directory
func ValidateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return invalid("fileName", "file name is required")
	case trimmed != name:
		return invalid("fileName", "file name has leading or trailing whitespace")
	case strings.ContainsAny(name, `/\`):
		return invalid("fileName", "file name must not contain path separators")
	case strings.Contains(name, ".."):
		return invalid("fileName", "file name must not contain '..'")
	case strings.ContainsRune(name, 0):
		return invalid("fileName", "file name contains a NUL byte")
	case strings.HasPrefix(name, "."):
		return invalid("fileName", "file name must not start with '.'")
	}
	return nil
}

// SubmitUpload validates and decodes a JSON upload and submits it
func (s *Service) SubmitUpload(ctx context.Context, req *UploadRequest) (*models.StatusRecord, error) {
	if req == nil {
		return nil, invalid("", "request body is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, invalid("content", "content is not valid base64")
	}

	return s.Submit(ctx, &SubmitRequest{
		FileName:  req.FileName,
		Content:   bytes.NewReader(content),
		Options:   req.JobOptions,
		AutoStart: req.AutoStart,
	})
}

// Submit stores the uploaded file under a new job ID and records it as Ready.
// With AutoStart the job is queued straight away.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*models.StatusRecord, error) {
	if err := ValidateFileName(req.FileName); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(req.FileName))
	if len(s.allowedExt) > 0 && !s.allowedExt[ext] {
		return nil, invalid("fileName", "file type %q is not supported", ext)
	}

	format, err := models.ParseExportFormat(req.Options.ExportFormat)
	if err != nil {
		return nil, invalid("exportFormat", "%s", err.Error())
	}
	if err := s.validateOptions(req.Options); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	dir := s.uploadDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, req.FileName)
	size, err := s.writeUpload(path, req.Content)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	pageCount := 0
	if inspect.IsPDF(path) && s.inspector != nil {
		if metadata, err := s.inspector.PDFMetadata(path); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Could not read PDF page count")
		} else {
			pageCount = metadata.PageCount
		}
	}

	now := time.Now()
	update := models.StatusUpdate{
		Status:        models.Ptr(models.StatusReady),
		Progress:      models.Ptr(0.0),
		FileName:      models.Ptr(req.FileName),
		FilePath:      models.Ptr(path),
		FileSize:      models.Ptr(size),
		PageCount:     models.Ptr(pageCount),
		ExportFormat:  models.Ptr(format),
		EmbedImages:   models.Ptr(false),
		Enrichment:    &models.Enrichment{},
		Chunking:      &models.ChunkingOptions{},
		Printable:     models.Ptr(false),
		SubmittedTime: &now,
	}
	applyOptions(&update, req.Options)

	record, err := s.status.Merge(ctx, id, update)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	s.logger.Info().
		Str("job_id", id).
		Str("file_name", req.FileName).
		Int64("file_size", size).
		Int("page_count", pageCount).
		Str("export_format", string(format)).
		Msg("Document submitted")

	if req.AutoStart {
		return s.Start(ctx, id, nil)
	}
	return record, nil
}

// writeUpload copies content to path, enforcing the size limit
func (s *Service) writeUpload(path string, content io.Reader) (int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer file.Close()

	reader := content
	if s.options.MaxUploadBytes > 0 {
		reader = io.LimitReader(content, s.options.MaxUploadBytes+1)
	}

	size, err := io.Copy(file, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to write upload file: %w", err)
	}
	if s.options.MaxUploadBytes > 0 && size > s.options.MaxUploadBytes {
		return 0, invalid("content", "file exceeds the %d MB upload limit", s.options.MaxUploadBytes/(1024*1024))
	}
	if size == 0 {
		return 0, invalid("content", "file is empty")
	}
	return size, nil
}

func (s *Service) validateOptions(opts JobOptions) error {
	if opts.ExportFormat != "" {
		if _, err := models.ParseExportFormat(opts.ExportFormat); err != nil {
			return invalid("exportFormat", "%s", err.Error())
		}
	}
	if err := s.validate.Struct(opts); err != nil {
		return &ValidationError{Field: "options", Message: err.Error()}
	}
	return nil
}

// applyOptions copies the client's choices into a status update
func applyOptions(update *models.StatusUpdate, opts JobOptions) {
	if opts.ExportFormat != "" {
		if format, err := models.ParseExportFormat(opts.ExportFormat); err == nil {
			update.ExportFormat = models.Ptr(format)
		}
	}
	if opts.EmbedImages != nil {
		update.EmbedImages = models.Ptr(*opts.EmbedImages)
	}
	if opts.Enrichment != nil {
		update.Enrichment = models.Ptr(*opts.Enrichment)
	}
	if opts.Chunking != nil {
		update.Chunking = models.Ptr(*opts.Chunking)
	}
	if opts.Printable != nil {
		update.Printable = models.Ptr(*opts.Printable)
	}
}

// descriptorFor builds the queue entry for a record that has just been queued
func descriptorFor(record *models.StatusRecord) *models.JobDescriptor {
	queued := time.Now()
	if record.QueuedTime != nil {
		queued = *record.QueuedTime
	}
	return &models.JobDescriptor{
		ID:           record.ID,
		FilePath:     record.FilePath,
		FileName:     record.FileName,
		ExportFormat: record.ExportFormat,
		EmbedImages:  record.EmbedImages,
		Enrichment:   record.Enrichment,
		Chunking:     record.Chunking,
		Printable:    record.Printable,
		QueuedTime:   queued,
	}
}
