package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/models"
)

type outcome int

const (
	outcomeExited outcome = iota
	outcomeTimeout
	outcomeCancelled
	outcomeShutdown
)

// job is the state of one engine run
type job struct {
	worker  *Worker
	desc    *models.JobDescriptor
	logger  arbor.ILogger
	ctx     context.Context // Cancelled when the worker stops
	store   context.Context // Never cancelled, used for status writes
	engine  *engineProcess
	timeout time.Duration
	started time.Time
}

func (j *job) run() {
	w := j.worker
	id := j.desc.ID
	j.timeout = w.options.Timeouts.For(j.desc.Enrichment)

	info, err := os.Stat(j.desc.FilePath)
	if err != nil {
		j.fail(&models.ErrorDetails{
			Kind:    models.ErrorKindInternal,
			Message: fmt.Sprintf("source file is missing: %s", filepath.Base(j.desc.FilePath)),
		})
		return
	}

	outDir := w.outputDir(id)
	if err := os.RemoveAll(outDir); err != nil {
		j.fail(&models.ErrorDetails{Kind: models.ErrorKindInternal, Message: fmt.Sprintf("failed to clear output directory: %v", err)})
		return
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		j.fail(&models.ErrorDetails{Kind: models.ErrorKindInternal, Message: fmt.Sprintf("failed to create output directory: %v", err)})
		return
	}
	dst := filepath.Join(outDir, j.desc.OutputName())

	j.started = time.Now()
	started := j.started
	_, err = w.status.CompareAndMerge(j.store, id, []models.JobStatus{models.StatusQueued}, func(*models.StatusRecord) models.StatusUpdate {
		return models.StatusUpdate{
			Status:      models.Ptr(models.StatusProcessing),
			Progress:    models.Ptr(0.0),
			StartTime:   &started,
			ClearError:  true,
			ClearResult: true,
		}
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrStatusConflict) || errors.Is(err, interfaces.ErrJobNotFound) {
			j.logger.Warn().Err(err).Str("job_id", id).Msg("Dequeued job is no longer queued, skipping")
			return
		}
		j.logger.Error().Err(err).Str("job_id", id).Msg("Failed to mark job as processing")
		return
	}

	estimate := EstimateDuration(info.Size())
	model := newProgressModel(estimate, j.desc.Enrichment.Any())

	j.logger.Info().
		Str("job_id", id).
		Str("file", j.desc.FileName).
		Str("format", string(j.desc.ExportFormat)).
		Strs("enrichment", j.desc.Enrichment.Names()).
		Str("timeout", j.timeout.String()).
		Str("estimate", estimate.String()).
		Msg("Starting conversion")

	engine, err := startEngine(w.options, id, engineArgs(j.desc, dst))
	if err != nil {
		j.fail(&models.ErrorDetails{Kind: models.ErrorKindEngine, Message: err.Error()})
		return
	}
	j.engine = engine
	defer engine.cleanup()

	switch j.monitor(model) {
	case outcomeCancelled:
		j.logger.Info().Str("job_id", id).Msg("Conversion cancelled")
		w.finishCancelled(j.store, j.logger, j.desc)
	case outcomeTimeout:
		details := j.details(models.ErrorKindTimeout, fmt.Sprintf("conversion timed out after %s", j.timeout))
		details.TimeoutSeconds = j.timeout.Seconds()
		j.fail(details)
	case outcomeShutdown:
		j.fail(j.details(models.ErrorKindShutdown, "worker stopped during conversion"))
	default:
		j.complete(dst)
	}
}

// monitor watches the engine until it exits or must be stopped, publishing
// estimated progress on every tick
func (j *job) monitor(model progressModel) outcome {
	w := j.worker
	id := j.desc.ID
	ticker := time.NewTicker(w.options.MonitorInterval)
	defer ticker.Stop()

	var tracker progressTracker
	var signalled time.Time

	for {
		select {
		case <-j.engine.done:
			return outcomeExited
		case <-j.ctx.Done():
			j.logger.Warn().Str("job_id", id).Msg("Worker stopping, killing engine")
			j.stopEngine()
			return outcomeShutdown
		case <-ticker.C:
		}

		elapsed := time.Since(j.started)
		if elapsed > j.timeout {
			j.logger.Warn().
				Str("job_id", id).
				Str("timeout", j.timeout.String()).
				Msg("Engine exceeded its time ceiling, killing")
			j.stopEngine()
			return outcomeTimeout
		}

		record, err := w.status.Get(j.store, id)
		if err != nil {
			j.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to poll cancellation flag")
		} else if record != nil && record.CancelRequested {
			j.stopEngine()
			return outcomeCancelled
		}

		if signalled.IsZero() {
			if j.engine.completion() != nil {
				signalled = time.Now()
				j.logger.Debug().Str("job_id", id).Msg("Completion signal seen, waiting for engine exit")
			}
		} else if time.Since(signalled) > w.options.ExitWait {
			j.logger.Warn().Str("job_id", id).Msg("Engine did not exit after signalling completion, killing")
			j.stopEngine()
			return outcomeExited
		}

		if value, ok := tracker.advance(model.at(elapsed)); ok {
			if _, err := w.status.Merge(j.store, id, models.StatusUpdate{Progress: &value}); err != nil {
				j.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to publish progress")
			}
		}
	}
}

// stopEngine kills the engine and waits a bounded time for it to be reaped
func (j *job) stopEngine() {
	j.engine.kill()
	select {
	case <-j.engine.done:
	case <-time.After(j.worker.options.ExitWait):
		j.logger.Warn().Str("job_id", j.desc.ID).Msg("Engine not reaped after kill")
	}
}

func (j *job) killEngine() {
	if j.engine != nil {
		j.engine.kill()
	}
}

// complete interprets the completion signal and finishes the job
func (j *job) complete(dst string) {
	w := j.worker
	id := j.desc.ID

	result := j.engine.completion()
	if result == nil {
		details := j.details(models.ErrorKindProtocol, "engine exited without a completion signal")
		if code := details.ExitCode; code != nil && *code != 0 {
			details.Kind = models.ErrorKindEngine
			details.Message = fmt.Sprintf("engine exited with code %d", *code)
		}
		j.fail(details)
		return
	}
	if !result.Succeeded() {
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = "engine reported failure"
		}
		j.fail(j.details(models.ErrorKindEngine, message))
		return
	}

	output := j.resolveOutput(dst, result)
	if output == "" {
		j.fail(j.details(models.ErrorKindOutput, "engine reported success but the output file is missing or empty"))
		return
	}

	update := models.StatusUpdate{
		OutputFile:      &output,
		ImagesExtracted: result.ImagesExtracted,
	}
	if result.ImagesDirectory != "" {
		update.ImagesDirectory = &result.ImagesDirectory
	}

	if err := j.enhance(output, result, &update); err != nil {
		j.fail(&models.ErrorDetails{Kind: models.ErrorKindEnhancement, Message: err.Error()})
		return
	}

	now := time.Now()
	update.Status = models.Ptr(models.StatusCompleted)
	update.Progress = models.Ptr(100.0)
	update.EndTime = &now
	update.CancelRequested = models.Ptr(false)
	if _, err := w.status.Merge(j.store, id, update); err != nil {
		j.logger.Error().Err(err).Str("job_id", id).Msg("Failed to record completion")
		return
	}

	j.logger.Info().
		Str("job_id", id).
		Str("output", filepath.Base(output)).
		Str("duration", now.Sub(j.started).Round(time.Millisecond).String()).
		Msg("Conversion completed")
}

// resolveOutput returns the first non-empty output file among the expected
// path and the one the engine reported
func (j *job) resolveOutput(dst string, result *models.EngineResult) string {
	candidates := []string{dst}
	if reported := strings.TrimSpace(result.OutputFile); reported != "" {
		if !filepath.IsAbs(reported) {
			reported = filepath.Join(filepath.Dir(dst), reported)
		}
		candidates = append(candidates, reported)
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return path
		}
	}
	return ""
}

// details builds error diagnostics from the captured engine output
func (j *job) details(kind, message string) *models.ErrorDetails {
	details := &models.ErrorDetails{Kind: kind, Message: message}
	if j.engine != nil {
		details.ExitCode = j.engine.exitCode()
		details.Stderr = j.engine.stderrTail()
		details.Stdout = j.engine.stdoutTail()
	}
	return details
}

// fail moves the job to Error
func (j *job) fail(details *models.ErrorDetails) {
	now := time.Now()
	message := details.Message

	_, err := j.worker.status.Merge(j.store, j.desc.ID, models.StatusUpdate{
		Status:          models.Ptr(models.StatusError),
		Error:           &message,
		ErrorDetails:    details,
		EndTime:         &now,
		CancelRequested: models.Ptr(false),
	})
	if err != nil {
		j.logger.Error().Err(err).Str("job_id", j.desc.ID).Msg("Failed to record job error")
	}

	j.logger.Error().
		Str("job_id", j.desc.ID).
		Str("kind", details.Kind).
		Str("error", message).
		Msg("Conversion failed")
}
