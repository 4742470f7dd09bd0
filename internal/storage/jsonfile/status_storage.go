package jsonfile

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/models"
)

// StatusLockName guards the status file
const StatusLockName = "status"

// StatusStorage keeps one status record per job ID in a JSON object
type StatusStorage struct {
	path      string
	locker    *lock.Locker
	logger    arbor.ILogger
	validate  *validator.Validate
	completed atomic.Int64
}

// NewStatusStorage creates a status store backed by path
func NewStatusStorage(path string, locker *lock.Locker, logger arbor.ILogger) *StatusStorage {
	return &StatusStorage{
		path:     path,
		locker:   locker,
		logger:   logger,
		validate: validator.New(),
	}
}

var _ interfaces.StatusStorage = (*StatusStorage)(nil)

func (s *StatusStorage) load() (map[string]*models.StatusRecord, error) {
	records, err := loadJSON[map[string]*models.StatusRecord](s.logger, s.path)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = make(map[string]*models.StatusRecord)
	}
	for id, record := range records {
		if record == nil {
			delete(records, id)
			continue
		}
		record.ID = id
	}
	return records, nil
}

func (s *StatusStorage) save(records map[string]*models.StatusRecord) error {
	return writeJSON(s.path, records)
}

// Get returns the record for id, or nil when absent
func (s *StatusStorage) Get(ctx context.Context, id string) (*models.StatusRecord, error) {
	return lock.WithLock(ctx, s.locker, StatusLockName, func() (*models.StatusRecord, error) {
		records, err := s.load()
		if err != nil {
			return nil, err
		}
		return records[id], nil
	})
}

// GetAll returns every record keyed by job ID
func (s *StatusStorage) GetAll(ctx context.Context) (map[string]*models.StatusRecord, error) {
	return lock.WithLock(ctx, s.locker, StatusLockName, func() (map[string]*models.StatusRecord, error) {
		return s.load()
	})
}

// Merge applies update to the record for id, creating it if absent
func (s *StatusStorage) Merge(ctx context.Context, id string, update models.StatusUpdate) (*models.StatusRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if err := s.validate.Struct(update); err != nil {
		return nil, fmt.Errorf("invalid status update for %s: %w", id, err)
	}

	return lock.WithLock(ctx, s.locker, StatusLockName, func() (*models.StatusRecord, error) {
		records, err := s.load()
		if err != nil {
			return nil, err
		}
		return s.apply(records, id, update)
	})
}

// CompareAndMerge applies the update built from the current record when its
// status is one of allowed
func (s *StatusStorage) CompareAndMerge(ctx context.Context, id string, allowed []models.JobStatus, build func(current *models.StatusRecord) models.StatusUpdate) (*models.StatusRecord, error) {
	return lock.WithLock(ctx, s.locker, StatusLockName, func() (*models.StatusRecord, error) {
		records, err := s.load()
		if err != nil {
			return nil, err
		}

		current, ok := records[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, id)
		}
		if !statusAllowed(current.Status, allowed) {
			return nil, &interfaces.StatusConflictError{JobID: id, Current: current.Status, Allowed: allowed}
		}

		update := build(current.Clone())
		if err := s.validate.Struct(update); err != nil {
			return nil, fmt.Errorf("invalid status update for %s: %w", id, err)
		}
		return s.apply(records, id, update)
	})
}

// apply merges update into records and persists them. Caller holds the lock.
func (s *StatusStorage) apply(records map[string]*models.StatusRecord, id string, update models.StatusUpdate) (*models.StatusRecord, error) {
	record, exists := records[id]
	if !exists {
		record = &models.StatusRecord{ID: id, Status: models.StatusReady}
		records[id] = record
	}

	previous := record.Status
	changed := update.Apply(record)
	record.UpdatedTime = time.Now()

	if err := s.save(records); err != nil {
		return nil, err
	}

	if changed && record.Status == models.StatusCompleted && previous != models.StatusCompleted {
		s.completed.Add(1)
	}

	if changed || !exists {
		s.logger.Debug().
			Str("job_id", id).
			Str("from", string(previous)).
			Str("to", string(record.Status)).
			Msg("Job status changed")
	}

	return record.Clone(), nil
}

// Delete removes the records for ids and returns how many existed
func (s *StatusStorage) Delete(ctx context.Context, ids ...string) (int, error) {
	return lock.WithLock(ctx, s.locker, StatusLockName, func() (int, error) {
		records, err := s.load()
		if err != nil {
			return 0, err
		}

		removed := 0
		for _, id := range ids {
			if _, ok := records[id]; ok {
				delete(records, id)
				removed++
			}
		}
		if removed == 0 {
			return 0, nil
		}
		return removed, s.save(records)
	})
}

// DeleteWhere removes every record matching match and returns the removed records
func (s *StatusStorage) DeleteWhere(ctx context.Context, match func(record *models.StatusRecord) bool) ([]*models.StatusRecord, error) {
	return lock.WithLock(ctx, s.locker, StatusLockName, func() ([]*models.StatusRecord, error) {
		records, err := s.load()
		if err != nil {
			return nil, err
		}

		removed := []*models.StatusRecord{}
		for id, record := range records {
			if match(record) {
				removed = append(removed, record)
				delete(records, id)
			}
		}
		if len(removed) == 0 {
			return removed, nil
		}
		return removed, s.save(records)
	})
}

// Counts returns the number of records in each status
func (s *StatusStorage) Counts(ctx context.Context) (map[models.JobStatus]int, error) {
	return lock.WithLock(ctx, s.locker, StatusLockName, func() (map[models.JobStatus]int, error) {
		records, err := s.load()
		if err != nil {
			return nil, err
		}

		counts := make(map[models.JobStatus]int, len(models.JobStatuses))
		for _, status := range models.JobStatuses {
			counts[status] = 0
		}
		for _, record := range records {
			counts[record.Status]++
		}
		return counts, nil
	})
}

// SessionCompleted returns how many jobs this process has moved to Completed
func (s *StatusStorage) SessionCompleted() int64 {
	return s.completed.Load()
}

func statusAllowed(status models.JobStatus, allowed []models.JobStatus) bool {
	for _, candidate := range allowed {
		if status == candidate {
			return true
		}
	}
	return false
}
