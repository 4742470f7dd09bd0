package webui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
)

func newTestWebServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>psdocling</h1>"), 0644))

	cfg := &common.WebConfig{Host: "localhost", Port: 0, Dir: dir, APIURL: "http://localhost:8080/"}
	ts := httptest.NewServer(NewServer(cfg, arbor.NewLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_ServesStaticFiles(t *testing.T) {
	ts := newTestWebServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "psdocling")

	missing, err := http.Get(ts.URL + "/nope.js")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_ConfigAdvertisesAPIURL(t *testing.T) {
	ts := newTestWebServer(t)

	resp, err := http.Get(ts.URL + "/config.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "http://localhost:8080", payload["apiUrl"])

	post, err := http.Post(ts.URL+"/config.json", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestWaitForBackend_SucceedsOnceHealthy(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	err := WaitForBackend(context.Background(), backend.Client(), backend.URL, 5, 10*time.Millisecond, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForBackend_GivesUp(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	err := WaitForBackend(context.Background(), backend.Client(), backend.URL, 2, time.Millisecond, arbor.NewLogger())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestWaitForBackend_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForBackend(ctx, nil, "http://127.0.0.1:1", 3, time.Second, arbor.NewLogger())
	assert.Error(t, err)
}
