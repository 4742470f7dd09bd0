package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/models"
)

var (
	startable     = []models.JobStatus{models.StatusReady}
	reprocessable = []models.JobStatus{models.StatusCompleted, models.StatusError, models.StatusCancelled}
	cancellable   = []models.JobStatus{models.StatusReady, models.StatusQueued, models.StatusProcessing}
	resettable    = []models.JobStatus{models.StatusError, models.StatusCancelled}
)

// Start moves a Ready job to Queued and appends it to the queue. The status
// check and the transition happen under one status lock hold, so two
// concurrent starts cannot both enqueue the job.
func (s *Service) Start(ctx context.Context, id string, opts *JobOptions) (*models.StatusRecord, error) {
	if opts != nil {
		if err := s.validateOptions(*opts); err != nil {
			return nil, err
		}
	}

	record, err := s.status.CompareAndMerge(ctx, id, startable, func(current *models.StatusRecord) models.StatusUpdate {
		now := time.Now()
		update := models.StatusUpdate{
			Status:          models.Ptr(models.StatusQueued),
			Progress:        models.Ptr(0.0),
			QueuedTime:      &now,
			CancelRequested: models.Ptr(false),
			ClearError:      true,
		}
		if opts != nil {
			applyOptions(&update, *opts)
		}
		return update
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, record, models.StatusReady); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", id).
		Str("export_format", string(record.ExportFormat)).
		Strs("enrichment", record.Enrichment.Names()).
		Msg("Job queued")
	return record, nil
}

// Reprocess queues a finished job again, optionally with new options.
// Previous results and errors are cleared; in-flight jobs are rejected.
func (s *Service) Reprocess(ctx context.Context, id string, opts *JobOptions) (*models.StatusRecord, error) {
	if opts != nil {
		if err := s.validateOptions(*opts); err != nil {
			return nil, err
		}
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !fileExists(current.FilePath) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, current.FileName)
	}

	var previous models.JobStatus
	record, err := s.status.CompareAndMerge(ctx, id, reprocessable, func(current *models.StatusRecord) models.StatusUpdate {
		previous = current.Status
		now := time.Now()
		update := models.StatusUpdate{
			Status:          models.Ptr(models.StatusQueued),
			Progress:        models.Ptr(0.0),
			QueuedTime:      &now,
			ReprocessedTime: &now,
			ReprocessCount:  models.Ptr(current.ReprocessCount + 1),
			CancelRequested: models.Ptr(false),
			ClearError:      true,
			ClearResult:     true,
		}
		if opts != nil {
			applyOptions(&update, *opts)
		}
		return update
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, record, previous); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", id).
		Str("previous_status", string(previous)).
		Int("reprocess_count", record.ReprocessCount).
		Msg("Job queued for reprocessing")
	return record, nil
}

// enqueue writes the descriptor for a freshly queued record. On failure the
// record is returned to rollback so it does not claim to be queued.
func (s *Service) enqueue(ctx context.Context, record *models.StatusRecord, rollback models.JobStatus) error {
	if err := s.queue.Enqueue(ctx, descriptorFor(record)); err != nil {
		if _, rbErr := s.status.Merge(context.WithoutCancel(ctx), record.ID, models.StatusUpdate{
			Status: models.Ptr(rollback),
		}); rbErr != nil {
			s.logger.Error().
				Err(rbErr).
				Str("job_id", record.ID).
				Msg("Failed to roll back job status after enqueue failure")
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Cancel stops a job. Ready jobs are cancelled at once. Queued and
// Processing jobs get cancelRequested; a queued job still in the queue is
// removed and cancelled here, otherwise the worker finalizes it at its
// next check.
func (s *Service) Cancel(ctx context.Context, id string) (*models.StatusRecord, error) {
	record, err := s.status.CompareAndMerge(ctx, id, cancellable, func(current *models.StatusRecord) models.StatusUpdate {
		if current.Status == models.StatusReady {
			now := time.Now()
			return models.StatusUpdate{
				Status:   models.Ptr(models.StatusCancelled),
				Progress: models.Ptr(0.0),
				EndTime:  &now,
			}
		}
		return models.StatusUpdate{CancelRequested: models.Ptr(true)}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", id).
		Str("status", string(record.Status)).
		Msg("Job cancellation requested")

	if record.Status != models.StatusQueued {
		return record, nil
	}

	removed, err := s.queue.Remove(ctx, id)
	if err != nil {
		// The flag is set; the worker will honour it when it dequeues the job
		s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to remove cancelled job from queue")
		return record, nil
	}
	if removed == 0 {
		return record, nil
	}

	cancelled, err := s.status.CompareAndMerge(ctx, id, []models.JobStatus{models.StatusQueued}, func(*models.StatusRecord) models.StatusUpdate {
		now := time.Now()
		return models.StatusUpdate{
			Status:          models.Ptr(models.StatusCancelled),
			Progress:        models.Ptr(0.0),
			EndTime:         &now,
			CancelRequested: models.Ptr(false),
		}
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrStatusConflict) {
			return s.Get(ctx, id)
		}
		return nil, err
	}
	return cancelled, nil
}

// Reset returns a failed or cancelled job to Ready so it can be started again
func (s *Service) Reset(ctx context.Context, id string) (*models.StatusRecord, error) {
	record, err := s.status.CompareAndMerge(ctx, id, resettable, func(*models.StatusRecord) models.StatusUpdate {
		return models.StatusUpdate{
			Status:          models.Ptr(models.StatusReady),
			Progress:        models.Ptr(0.0),
			CancelRequested: models.Ptr(false),
			ClearError:      true,
			ClearResult:     true,
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", id).Msg("Job reset to Ready")
	return record, nil
}

// Clear removes every record that is not Queued or Processing, with its job
// log. Uploaded and converted files are left for the retention sweeper.
func (s *Service) Clear(ctx context.Context) (int, error) {
	removed, err := s.status.DeleteWhere(ctx, func(record *models.StatusRecord) bool {
		return !record.Status.InFlight()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear jobs: %w", err)
	}

	if s.jobLogs != nil {
		for _, record := range removed {
			if err := s.jobLogs.DeleteLogs(record.ID); err != nil {
				s.logger.Warn().Err(err).Str("job_id", record.ID).Msg("Failed to delete job log")
			}
		}
	}

	s.logger.Info().Int("cleared", len(removed)).Msg("Finished jobs cleared")
	return len(removed), nil
}
