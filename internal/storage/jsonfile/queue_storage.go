package jsonfile

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/models"
)

// QueueLockName guards the queue file
const QueueLockName = "queue"

// QueueStorage is a FIFO of job descriptors persisted as a JSON array
type QueueStorage struct {
	path   string
	locker *lock.Locker
	logger arbor.ILogger
}

// NewQueueStorage creates a queue backed by path
func NewQueueStorage(path string, locker *lock.Locker, logger arbor.ILogger) *QueueStorage {
	return &QueueStorage{
		path:   path,
		locker: locker,
		logger: logger,
	}
}

var _ interfaces.QueueStorage = (*QueueStorage)(nil)

func (s *QueueStorage) load() ([]*models.JobDescriptor, error) {
	entries, err := loadJSON[[]*models.JobDescriptor](s.logger, s.path)
	if err != nil {
		return nil, err
	}

	// Drop null entries left by hand edits
	valid := entries[:0]
	for _, entry := range entries {
		if entry != nil && entry.ID != "" {
			valid = append(valid, entry)
		}
	}
	return valid, nil
}

func (s *QueueStorage) save(entries []*models.JobDescriptor) error {
	if entries == nil {
		entries = []*models.JobDescriptor{}
	}
	return writeJSON(s.path, entries)
}

// Enqueue appends a descriptor to the tail of the queue
func (s *QueueStorage) Enqueue(ctx context.Context, descriptor *models.JobDescriptor) error {
	if descriptor == nil || descriptor.ID == "" {
		return fmt.Errorf("descriptor ID is required")
	}

	return s.locker.Do(ctx, QueueLockName, func() error {
		entries, err := s.load()
		if err != nil {
			return err
		}

		entries = append(entries, descriptor)
		if err := s.save(entries); err != nil {
			return err
		}

		s.logger.Debug().
			Str("job_id", descriptor.ID).
			Int("queue_length", len(entries)).
			Msg("Job enqueued")
		return nil
	})
}

// DequeueOldest removes and returns the head of the queue. An empty queue
// returns nil without touching the file.
func (s *QueueStorage) DequeueOldest(ctx context.Context) (*models.JobDescriptor, error) {
	return lock.WithLock(ctx, s.locker, QueueLockName, func() (*models.JobDescriptor, error) {
		entries, err := s.load()
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, nil
		}

		head := entries[0]
		if err := s.save(entries[1:]); err != nil {
			return nil, err
		}

		s.logger.Debug().
			Str("job_id", head.ID).
			Int("remaining", len(entries)-1).
			Msg("Job dequeued")
		return head, nil
	})
}

// ListAll returns a snapshot of the queue in FIFO order
func (s *QueueStorage) ListAll(ctx context.Context) ([]*models.JobDescriptor, error) {
	return lock.WithLock(ctx, s.locker, QueueLockName, func() ([]*models.JobDescriptor, error) {
		entries, err := s.load()
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*models.JobDescriptor{}
		}
		return entries, nil
	})
}

// Remove drops every entry for id and returns how many were removed
func (s *QueueStorage) Remove(ctx context.Context, id string) (int, error) {
	return lock.WithLock(ctx, s.locker, QueueLockName, func() (int, error) {
		entries, err := s.load()
		if err != nil {
			return 0, err
		}

		kept := make([]*models.JobDescriptor, 0, len(entries))
		for _, entry := range entries {
			if entry.ID != id {
				kept = append(kept, entry)
			}
		}

		removed := len(entries) - len(kept)
		if removed == 0 {
			return 0, nil
		}
		if err := s.save(kept); err != nil {
			return 0, err
		}
		return removed, nil
	})
}

// Len returns the number of queued descriptors
func (s *QueueStorage) Len(ctx context.Context) (int, error) {
	return lock.WithLock(ctx, s.locker, QueueLockName, func() (int, error) {
		entries, err := s.load()
		if err != nil {
			return 0, err
		}
		return len(entries), nil
	})
}
