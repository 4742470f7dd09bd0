// -----------------------------------------------------------------------
// Worker - Single consumer of the conversion queue
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/chunking"
	"github.com/ternarybob/psdocling/internal/services/inspect"
	"github.com/ternarybob/psdocling/internal/services/printable"
)

// Worker dequeues one job at a time, runs the conversion engine for it and
// drives its status record to a terminal state
type Worker struct {
	queue     interfaces.QueueStorage
	status    interfaces.StatusStorage
	chunker   *chunking.Service
	inspector *inspect.Inspector
	renderer  *printable.Renderer
	options   Options
	logger    arbor.ILogger
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan error
}

// MaxConsecutiveFailures is how many failed queue reads in a row stop the loop
const MaxConsecutiveFailures = 10

// NewWorker creates the worker. Enhancement services may be nil, in which case
// the matching enhancement is skipped.
func NewWorker(
	queue interfaces.QueueStorage,
	status interfaces.StatusStorage,
	chunker *chunking.Service,
	inspector *inspect.Inspector,
	renderer *printable.Renderer,
	options Options,
	logger arbor.ILogger,
) *Worker {
	options.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		queue:     queue,
		status:    status,
		chunker:   chunker,
		inspector: inspector,
		renderer:  renderer,
		options:   options,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan error, 1),
	}
}

// Start runs the worker loop in the background until Stop. A loop that gives
// up after repeated store failures reports its error on Done.
func (w *Worker) Start() {
	w.logger.Info().
		Strs("engine", w.options.EngineCommand).
		Str("poll_interval", w.options.PollInterval.String()).
		Msg("Starting worker")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Run(w.ctx); err != nil {
			w.done <- err
		}
	}()
}

// Done delivers the error of a loop that stopped on its own
func (w *Worker) Done() <-chan error {
	return w.done
}

// Stop cancels the loop and waits for the current job to be finalised
func (w *Worker) Stop() {
	w.logger.Info().Msg("Stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info().Msg("Worker stopped")
}

// Run polls the queue until ctx is cancelled. A failed iteration is retried
// after one poll interval; MaxConsecutiveFailures in a row end the loop with
// the last error.
func (w *Worker) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			w.logger.Error().
				Err(err).
				Int("consecutive_failures", failures).
				Msg("Worker iteration failed")
			if failures >= MaxConsecutiveFailures {
				return fmt.Errorf("worker stopped after %d consecutive failures: %w", failures, err)
			}
		} else {
			failures = 0
			if processed {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.options.PollInterval):
		}
	}
}

// ProcessNext dequeues and runs one job. It reports false when the queue was
// empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	desc, err := w.queue.DequeueOldest(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue: %w", err)
	}
	if desc == nil {
		return false, nil
	}

	w.process(ctx, desc)
	return true, nil
}

// process runs one dequeued job to a terminal state
func (w *Worker) process(ctx context.Context, desc *models.JobDescriptor) {
	logger := w.logger.WithCorrelationId(desc.ID)
	// Final writes must land even when the loop is being shut down
	persistCtx := context.WithoutCancel(ctx)

	record, err := w.status.Get(persistCtx, desc.ID)
	if err != nil {
		logger.Error().Err(err).Str("job_id", desc.ID).Msg("Failed to read status for dequeued job")
		return
	}
	if record == nil {
		logger.Warn().Str("job_id", desc.ID).Msg("Dequeued job has no status record, skipping")
		return
	}
	if record.CancelRequested || record.Status == models.StatusCancelled {
		logger.Info().Str("job_id", desc.ID).Msg("Job cancelled before start")
		w.finishCancelled(persistCtx, logger, desc)
		return
	}

	j := &job{
		worker: w,
		desc:   desc,
		logger: logger,
		ctx:    ctx,
		store:  persistCtx,
	}

	defer func() {
		if r := recover(); r != nil {
			j.killEngine()
			logger.Error().
				Str("job_id", desc.ID).
				Str("panic", fmt.Sprint(r)).
				Msg("Worker panicked while processing job")
			j.fail(&models.ErrorDetails{
				Kind:      models.ErrorKindInternal,
				Message:   "internal worker error",
				Exception: fmt.Sprint(r),
				Trace:     string(debug.Stack()),
			})
		}
	}()

	j.run()
}

// finishCancelled moves a job to Cancelled and discards partial output
func (w *Worker) finishCancelled(ctx context.Context, logger arbor.ILogger, desc *models.JobDescriptor) {
	if err := os.RemoveAll(w.outputDir(desc.ID)); err != nil {
		logger.Warn().Err(err).Str("job_id", desc.ID).Msg("Failed to remove partial output")
	}

	now := time.Now()
	_, err := w.status.Merge(ctx, desc.ID, models.StatusUpdate{
		Status:          models.Ptr(models.StatusCancelled),
		Progress:        models.Ptr(0.0),
		CancelRequested: models.Ptr(false),
		EndTime:         &now,
	})
	if err != nil {
		logger.Error().Err(err).Str("job_id", desc.ID).Msg("Failed to record cancellation")
	}
}

func (w *Worker) outputDir(id string) string {
	return filepath.Join(w.options.OutputDir, id)
}
