package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/chunking"
	"github.com/ternarybob/psdocling/internal/services/inspect"
	"github.com/ternarybob/psdocling/internal/services/jobs"
	"github.com/ternarybob/psdocling/internal/services/printable"
	"github.com/ternarybob/psdocling/internal/storage/jsonfile"
)

const successEngine = `printf '# Converted\n\nhello world from the engine\n' > "$2"
echo "loading models"
echo '{"success": true, "format": "'"$3"'", "output_file": "'"$2"'"}'
`

type testEnv struct {
	dir     string
	logger  arbor.ILogger
	queue   *jsonfile.QueueStorage
	status  *jsonfile.StatusStorage
	jobs    *jobs.Service
	options Options
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine stubs are shell scripts")
	}

	dir := t.TempDir()
	logger := arbor.NewLogger()
	locker, err := lock.NewLocker(dir, "test", 5*time.Second)
	require.NoError(t, err)

	queue := jsonfile.NewQueueStorage(filepath.Join(dir, "queue.json"), locker, logger)
	status := jsonfile.NewStatusStorage(filepath.Join(dir, "status.json"), locker, logger)
	outputDir := filepath.Join(dir, "output")

	service := jobs.NewService(queue, status, inspect.NewInspector(logger), nil, jobs.Options{
		UploadsDir:        filepath.Join(dir, "uploads"),
		OutputDir:         outputDir,
		MaxUploadBytes:    1 << 20,
		AllowedExtensions: []string{".pdf", ".md", ".txt"},
	}, logger)

	timeouts := DefaultTimeoutPolicy()
	timeouts.Base = 10 * time.Second

	return &testEnv{
		dir:    dir,
		logger: logger,
		queue:  queue,
		status: status,
		jobs:   service,
		options: Options{
			OutputDir:       outputDir,
			PollInterval:    20 * time.Millisecond,
			MonitorInterval: 20 * time.Millisecond,
			ExitWait:        500 * time.Millisecond,
			Timeouts:        timeouts,
		},
	}
}

// engine installs a shell script as the conversion engine
func (e *testEnv) engine(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(e.dir, "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	e.options.EngineCommand = []string{"/bin/sh", path}
}

func (e *testEnv) worker() *Worker {
	return NewWorker(e.queue, e.status,
		chunking.NewService(e.logger),
		inspect.NewInspector(e.logger),
		printable.NewRenderer(e.logger),
		e.options, e.logger)
}

func (e *testEnv) queueJob(t *testing.T, name string, opts jobs.JobOptions) *models.StatusRecord {
	t.Helper()
	record, err := e.jobs.Submit(context.Background(), &jobs.SubmitRequest{
		FileName:  name,
		Content:   strings.NewReader("# Title\n\nSome body text\n"),
		Options:   opts,
		AutoStart: true,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusQueued, record.Status)
	return record
}

func (e *testEnv) get(t *testing.T, id string) *models.StatusRecord {
	t.Helper()
	record, err := e.status.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func (e *testEnv) processNext(t *testing.T, w *Worker) {
	t.Helper()
	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)

	processed, err := env.worker().ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessNext_CompletesJob(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, 100.0, record.Progress)
	assert.Equal(t, filepath.Join(env.options.OutputDir, queued.ID, "notes.md"), record.OutputFile)
	assert.NotNil(t, record.StartTime)
	assert.NotNil(t, record.EndTime)
	assert.Empty(t, record.Error)

	length, err := env.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestProcessNext_PassesPositionalArguments(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `echo "<p>$3 $4 $5 $6 $7 $8</p>" > "$2"
echo '{"success": true}'
`)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{
		ExportFormat: "html",
		EmbedImages:  models.Ptr(true),
		Enrichment:   &models.Enrichment{Code: true, PictureDescription: true},
	})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	require.Equal(t, models.StatusCompleted, record.Status)
	data, err := os.ReadFile(record.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "<p>html true true false false true</p>\n", string(data))

	// HTML output without a reported count is inspected
	require.NotNil(t, record.ImagesExtracted)
	assert.Equal(t, 0, *record.ImagesExtracted)
}

func TestProcessNext_EngineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `echo "traceback: boom" >&2
echo '{"success": false, "error": "unsupported document"}'
exit 3
`)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusError, record.Status)
	assert.Equal(t, "unsupported document", record.Error)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindEngine, record.ErrorDetails.Kind)
	require.NotNil(t, record.ErrorDetails.ExitCode)
	assert.Equal(t, 3, *record.ErrorDetails.ExitCode)
	assert.Contains(t, record.ErrorDetails.Stderr, "traceback: boom")
	assert.NotNil(t, record.EndTime)
}

func TestProcessNext_MissingCompletionSignal(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `echo "converted, probably"
`)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusError, record.Status)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindProtocol, record.ErrorDetails.Kind)
	assert.Contains(t, record.ErrorDetails.Stdout, "converted, probably")
}

func TestProcessNext_NonZeroExitWithoutSignal(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, "exit 2\n")
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindEngine, record.ErrorDetails.Kind)
	assert.Equal(t, "engine exited with code 2", record.Error)
}

func TestProcessNext_SuccessWithoutOutput(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `echo '{"success": true, "output_file": "elsewhere.md"}'
`)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusError, record.Status)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindOutput, record.ErrorDetails.Kind)
	assert.Empty(t, record.OutputFile)
}

func TestProcessNext_UsesReportedOutputPath(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `out="$(dirname "$2")/renamed.md"
echo "content" > "$out"
echo '{"success": true, "output_file": "renamed.md"}'
`)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	require.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, filepath.Join(env.options.OutputDir, queued.ID, "renamed.md"), record.OutputFile)
}

func TestProcessNext_Timeout(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, "exec sleep 30\n")
	env.options.Timeouts.Base = 300 * time.Millisecond
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	started := time.Now()
	env.processNext(t, env.worker())
	assert.Less(t, time.Since(started), 10*time.Second)

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusError, record.Status)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindTimeout, record.ErrorDetails.Kind)
	assert.InDelta(t, 0.3, record.ErrorDetails.TimeoutSeconds, 0.001)
}

func TestProcessNext_CancelWhileProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `echo "partial" > "$2"
exec sleep 30
`)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	go func() {
		for i := 0; i < 200; i++ {
			record, err := env.status.Get(context.Background(), queued.ID)
			if err == nil && record != nil && record.Status == models.StatusProcessing {
				_, _ = env.jobs.Cancel(context.Background(), queued.ID)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	started := time.Now()
	env.processNext(t, env.worker())
	assert.Less(t, time.Since(started), 10*time.Second)

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusCancelled, record.Status)
	assert.False(t, record.CancelRequested)
	assert.Zero(t, record.Progress)
	assert.NoDirExists(t, filepath.Join(env.options.OutputDir, queued.ID))
}

func TestProcessNext_CancelRequestedBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	marker := filepath.Join(env.dir, "ran")
	env.engine(t, "touch "+marker+"\n")
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	_, err := env.status.Merge(context.Background(), queued.ID, models.StatusUpdate{CancelRequested: models.Ptr(true)})
	require.NoError(t, err)

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusCancelled, record.Status)
	assert.NoFileExists(t, marker)
}

func TestProcessNext_KillsEngineThatHangsAfterSignal(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, `echo "done" > "$2"
echo '{"success": true}'
exec sleep 30
`)
	env.options.ExitWait = 200 * time.Millisecond
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	started := time.Now()
	env.processNext(t, env.worker())
	assert.Less(t, time.Since(started), 10*time.Second)

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusCompleted, record.Status)
}

func TestProcessNext_ShutdownFailsRunningJob(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, "exec sleep 30\n")
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	processed, err := env.worker().ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusError, record.Status)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindShutdown, record.ErrorDetails.Kind)
}

func TestProcessNext_SkipsEntryWithoutRecord(t *testing.T) {
	env := newTestEnv(t)
	marker := filepath.Join(env.dir, "ran")
	env.engine(t, "touch "+marker+"\n")

	require.NoError(t, env.queue.Enqueue(context.Background(), &models.JobDescriptor{
		ID:           "orphan",
		FileName:     "orphan.md",
		FilePath:     filepath.Join(env.dir, "orphan.md"),
		ExportFormat: models.FormatMarkdown,
	}))

	env.processNext(t, env.worker())

	record, err := env.status.Get(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoFileExists(t, marker)
}

func TestProcessNext_MissingSourceFails(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})
	require.NoError(t, os.Remove(queued.FilePath))

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusError, record.Status)
	require.NotNil(t, record.ErrorDetails)
	assert.Equal(t, models.ErrorKindInternal, record.ErrorDetails.Kind)
}

func TestProcessNext_RunsEnhancements(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{
		Chunking:  &models.ChunkingOptions{Enabled: true, MaxTokens: 64},
		Printable: models.Ptr(true),
	})

	env.processNext(t, env.worker())

	record := env.get(t, queued.ID)
	require.Equal(t, models.StatusCompleted, record.Status, record.Error)
	assert.Equal(t, 100.0, record.Progress)

	assert.FileExists(t, record.ChunksFile)
	assert.Equal(t, filepath.Join(env.options.OutputDir, queued.ID, "notes"+chunking.FileSuffix), record.ChunksFile)
	require.NotNil(t, record.ChunkCount)
	assert.Positive(t, *record.ChunkCount)

	assert.Equal(t, filepath.Join(env.options.OutputDir, queued.ID, "notes.pdf"), record.PrintableFile)
	data, err := os.ReadFile(record.PrintableFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestProcessNext_ReprocessRunsAgain(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)
	queued := env.queueJob(t, "notes.md", jobs.JobOptions{})
	w := env.worker()

	env.processNext(t, w)
	_, err := env.jobs.Reprocess(context.Background(), queued.ID, &jobs.JobOptions{ExportFormat: "text"})
	require.NoError(t, err)
	env.processNext(t, w)

	record := env.get(t, queued.ID)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, 1, record.ReprocessCount)
	assert.Equal(t, filepath.Join(env.options.OutputDir, queued.ID, "notes.txt"), record.OutputFile)
	assert.NoFileExists(t, filepath.Join(env.options.OutputDir, queued.ID, "notes.md"))
}

func TestWorker_StartStop(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)
	w := env.worker()
	w.Start()
	defer w.Stop()

	first := env.queueJob(t, "first.md", jobs.JobOptions{})
	second := env.queueJob(t, "second.md", jobs.JobOptions{})

	require.Eventually(t, func() bool {
		a, _ := env.status.Get(context.Background(), first.ID)
		b, _ := env.status.Get(context.Background(), second.ID)
		return a != nil && b != nil &&
			a.Status == models.StatusCompleted && b.Status == models.StatusCompleted
	}, 10*time.Second, 20*time.Millisecond)
}

type failingQueue struct {
	interfaces.QueueStorage
	calls int
}

func (q *failingQueue) DequeueOldest(ctx context.Context) (*models.JobDescriptor, error) {
	q.calls++
	return nil, errors.New("state directory unwritable")
}

func TestRun_StopsAfterConsecutiveFailures(t *testing.T) {
	env := newTestEnv(t)
	env.options.PollInterval = time.Millisecond
	queue := &failingQueue{}
	w := NewWorker(queue, env.status, nil, nil, nil, env.options, env.logger)

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state directory unwritable")
	assert.Equal(t, MaxConsecutiveFailures, queue.calls)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.engine(t, successEngine)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, env.worker().Run(ctx))
}
