package handlers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/jobs"
)

const (
	defaultLogLimit = 200
	multipartMemory = 32 << 20
)

// JobHandler serves the job lifecycle endpoints
type JobHandler struct {
	jobs    *jobs.Service
	maxBody int64
	logger  arbor.ILogger
}

// NewJobHandler creates a job handler. maxUploadBytes bounds the decoded
// upload; the request body limit allows for base64 expansion.
func NewJobHandler(jobService *jobs.Service, maxUploadBytes int64, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:    jobService,
		maxBody: maxUploadBytes/3*4 + 64*1024,
		logger:  logger,
	}
}

// jobID extracts {id} from /api/jobs/{id}/...
func jobID(r *http.Request) string {
	segments := PathSegments(r.URL.Path, "/api/jobs/")
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// ListHandler returns every job record, newest first
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	records, err := h.jobs.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": records,
		"total":     len(records),
	})
}

// GetHandler returns one job record
func (h *JobHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	record, err := h.jobs.Get(r.Context(), jobID(r))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// UploadHandler accepts a document as a base64 JSON body or as multipart
// form data and records it as a Ready job
func (h *JobHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var record *models.StatusRecord
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		record, err = h.uploadMultipart(r)
	} else {
		var req jobs.UploadRequest
		if err = DecodeJSON(r, &req); err == nil {
			record, err = h.jobs.SubmitUpload(r.Context(), &req)
		}
	}
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("job_id", record.ID).
		Str("file", record.FileName).
		Str("status", string(record.Status)).
		Msg("Document uploaded")
	WriteJSON(w, http.StatusCreated, record)
}

func (h *JobHandler) uploadMultipart(r *http.Request) (*models.StatusRecord, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, &jobs.ValidationError{Message: fmt.Sprintf("invalid multipart body: %v", err)}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &jobs.ValidationError{Field: "file", Message: "a file field is required"}
	}
	defer file.Close()

	var opts jobs.JobOptions
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return nil, &jobs.ValidationError{Field: "options", Message: err.Error()}
		}
	}

	return h.jobs.Submit(r.Context(), &jobs.SubmitRequest{
		FileName:  header.Filename,
		Content:   file,
		Options:   opts,
		AutoStart: r.FormValue("autoStart") == "true",
	})
}

// StartHandler queues a Ready job
func (h *JobHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	opts, ok := h.decodeOptions(w, r)
	if !ok {
		return
	}
	record, err := h.jobs.Start(r.Context(), jobID(r), opts)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// ReprocessHandler queues a finished job again, optionally with new options
func (h *JobHandler) ReprocessHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	opts, ok := h.decodeOptions(w, r)
	if !ok {
		return
	}
	record, err := h.jobs.Reprocess(r.Context(), jobID(r), opts)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// decodeOptions reads optional JobOptions from the body
func (h *JobHandler) decodeOptions(w http.ResponseWriter, r *http.Request) (*jobs.JobOptions, bool) {
	opts := &jobs.JobOptions{}
	if err := DecodeJSON(r, opts); err != nil {
		WriteServiceError(w, h.logger, err)
		return nil, false
	}
	return opts, true
}

// CancelHandler cancels a job. Running jobs stop at the worker's next check.
func (h *JobHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	record, err := h.jobs.Cancel(r.Context(), jobID(r))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// ResetHandler returns a failed or cancelled job to Ready
func (h *JobHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	record, err := h.jobs.Reset(r.Context(), jobID(r))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// ErrorHandler reports whether a job failed and why
func (h *JobHandler) ErrorHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	report, err := h.jobs.ErrorReport(r.Context(), jobID(r))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// ResultHandler streams the output file of a completed job
func (h *JobHandler) ResultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	_, path, err := h.jobs.ResultPath(r.Context(), jobID(r))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	serveFile(w, r, h.logger, path, "inline")
}

// LogsHandler returns the worker log lines captured for a job
func (h *JobHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := jobID(r)
	entries, err := h.jobs.Logs(r.Context(), id, QueryInt(r, "limit", defaultLogLimit))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":   id,
		"logs": entries,
	})
}

// ClearHandler deletes every job that is not queued or processing
func (h *JobHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	removed, err := h.jobs.Clear(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"removed": removed,
	})
}

var contentTypes = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
}

// contentTypeFor returns the content type of a generated file
func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// serveFile streams path with range support
func serveFile(w http.ResponseWriter, r *http.Request, logger arbor.ILogger, path, disposition string) {
	file, err := os.Open(path)
	if err != nil {
		WriteServiceError(w, logger, fmt.Errorf("%w: %s", jobs.ErrFileNotFound, filepath.Base(path)))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		WriteServiceError(w, logger, err)
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), file)
}
