// -----------------------------------------------------------------------
// Web UI - Static file server for the browser front end
// -----------------------------------------------------------------------

package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/handlers"
)

// ErrBackendUnavailable is returned when the control server never became healthy
var ErrBackendUnavailable = errors.New("control server did not become healthy")

// Server serves the web UI directory and advertises the control server URL
type Server struct {
	config *common.WebConfig
	logger arbor.ILogger
	server *http.Server
}

// NewServer creates the static server from the web configuration
func NewServer(config *common.WebConfig, logger arbor.ILogger) *Server {
	s := &Server{config: config, logger: logger}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler: /config.json plus the static directory
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/config.json", s.configHandler)
	mux.Handle("/", http.FileServer(http.Dir(s.config.Dir)))
	return mux
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"apiUrl": strings.TrimRight(s.config.APIURL, "/"),
	})
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Str("dir", s.config.Dir).
		Str("api_url", s.config.APIURL).
		Msg("Web UI server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// WaitForBackend probes GET <apiURL>/api/health until it answers 200, giving up
// after attempts probes. A cancelled context ends the wait early.
func WaitForBackend(ctx context.Context, client *http.Client, apiURL string, attempts int, interval time.Duration, logger arbor.ILogger) error {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if attempts <= 0 {
		attempts = 1
	}
	healthURL := strings.TrimRight(apiURL, "/") + "/api/health"

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = probe(ctx, client, healthURL)
		if lastErr == nil {
			logger.Info().Str("url", healthURL).Int("attempt", attempt).Msg("Control server is healthy")
			return nil
		}

		logger.Debug().Err(lastErr).Int("attempt", attempt).Int("attempts", attempts).Msg("Control server not ready")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrBackendUnavailable, attempts, lastErr)
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
