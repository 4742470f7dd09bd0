package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/services/jobs"
)

// FileHandler lists and serves generated output files
type FileHandler struct {
	jobs   *jobs.Service
	logger arbor.ILogger
}

func NewFileHandler(jobService *jobs.Service, logger arbor.ILogger) *FileHandler {
	return &FileHandler{
		jobs:   jobService,
		logger: logger,
	}
}

// ListHandler returns the generated files of every job
func (h *FileHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	files, err := h.jobs.ListFiles()
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"total": len(files),
	})
}

// DownloadHandler serves /api/files/{id}/{name} as an attachment
func (h *FileHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	segments := PathSegments(r.URL.Path, "/api/files/")
	if len(segments) != 2 {
		WriteError(w, http.StatusNotFound, "file not found")
		return
	}

	path, err := h.jobs.FilePath(segments[0], segments[1])
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	serveFile(w, r, h.logger, path, "attachment")
}
