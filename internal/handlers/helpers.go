package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/services/jobs"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// ErrorResponse is the body of every failed API request
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, ErrorResponse{
		Status: "error",
		Error:  message,
	})
}

// StatusForError maps a service error to its HTTP status and whether the
// client may retry the same request
func StatusForError(err error) (int, bool) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, false
	case jobs.IsValidationError(err):
		return http.StatusBadRequest, false
	case errors.Is(err, interfaces.ErrJobNotFound), errors.Is(err, jobs.ErrFileNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, interfaces.ErrStatusConflict),
		errors.Is(err, jobs.ErrSourceMissing),
		errors.Is(err, jobs.ErrResultUnavailable):
		return http.StatusConflict, false
	case errors.Is(err, lock.ErrLockTimeout):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

// WriteServiceError writes err with the status StatusForError assigns to it.
// Server side failures are logged.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error) error {
	statusCode, retryable := StatusForError(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", statusCode).Msg("Request failed")
	}
	return WriteJSON(w, statusCode, ErrorResponse{
		Status:    "error",
		Error:     err.Error(),
		Retryable: retryable,
	})
}

// DecodeJSON reads a JSON request body into v. An empty body leaves v unchanged.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &jobs.ValidationError{Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}

// PathSegments splits the path below prefix into its non-empty segments.
// "/api/jobs/abc/start" with prefix "/api/jobs/" yields ["abc", "start"].
func PathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// QueryInt reads a positive integer query parameter, returning fallback when
// it is absent or invalid
func QueryInt(r *http.Request, name string, fallback int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
