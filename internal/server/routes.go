package server

import (
	"net/http"

	"github.com/ternarybob/psdocling/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.StatusFeed.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	// API routes - Documents and jobs
	mux.HandleFunc("/api/documents", s.app.JobHandler.ListHandler)
	mux.HandleFunc("/api/upload", s.app.JobHandler.UploadHandler)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Generated files
	mux.HandleFunc("/api/files", s.app.FileHandler.ListHandler)
	mux.HandleFunc("/api/files/", s.app.FileHandler.DownloadHandler) // GET /api/files/{id}/{name}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes routes job-related requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	segments := handlers.PathSegments(r.URL.Path, "/api/jobs/")
	h := s.app.JobHandler

	switch len(segments) {
	case 1:
		// POST /api/jobs/clear
		if segments[0] == "clear" {
			RouteByMethod(w, r, MethodRouter{"POST": h.ClearHandler})
			return
		}
		// GET /api/jobs/{id}
		RouteByMethod(w, r, MethodRouter{"GET": h.GetHandler})
		return
	case 2:
		if RouteByPathSuffix(w, r, "/api/jobs/", jobActions(h)) {
			return
		}
	}

	s.app.APIHandler.NotFoundHandler(w, r)
}

// jobActions lists the /api/jobs/{id}/{action} endpoints
func jobActions(h *handlers.JobHandler) []PathSuffixRouter {
	return []PathSuffixRouter{
		{Suffix: "/start", Methods: MethodRouter{"POST": h.StartHandler}},
		{Suffix: "/reprocess", Methods: MethodRouter{"POST": h.ReprocessHandler}},
		{Suffix: "/cancel", Methods: MethodRouter{"POST": h.CancelHandler}},
		{Suffix: "/reset", Methods: MethodRouter{"POST": h.ResetHandler}},
		{Suffix: "/error", Methods: MethodRouter{"GET": h.ErrorHandler}},
		{Suffix: "/result", Methods: MethodRouter{"GET": h.ResultHandler}},
		{Suffix: "/logs", Methods: MethodRouter{"GET": h.LogsHandler}},
	}
}
