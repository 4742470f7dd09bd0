// -----------------------------------------------------------------------
// Storage interfaces - Queue and status persistence shared across processes
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/psdocling/internal/models"
)

var (
	// ErrJobNotFound is returned when no status record exists for a job ID
	ErrJobNotFound = errors.New("job not found")

	// ErrStatusConflict is returned when a job is not in a state that allows the operation
	ErrStatusConflict = errors.New("job status conflict")
)

// StatusConflictError describes a rejected check-and-set
type StatusConflictError struct {
	JobID   string
	Current models.JobStatus
	Allowed []models.JobStatus
}

func (e *StatusConflictError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("job %s is %s (expected %s)", e.JobID, e.Current, strings.Join(allowed, " or "))
}

// Is lets errors.Is match ErrStatusConflict
func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

// QueueStorage - FIFO of job descriptors awaiting the worker
type QueueStorage interface {
	Enqueue(ctx context.Context, descriptor *models.JobDescriptor) error
	DequeueOldest(ctx context.Context) (*models.JobDescriptor, error) // nil, nil when empty
	ListAll(ctx context.Context) ([]*models.JobDescriptor, error)
	Remove(ctx context.Context, id string) (int, error)
	Len(ctx context.Context) (int, error)
}

// StatusStorage - per-job status records with field-level merge
type StatusStorage interface {
	Get(ctx context.Context, id string) (*models.StatusRecord, error) // nil, nil when absent
	GetAll(ctx context.Context) (map[string]*models.StatusRecord, error)
	Merge(ctx context.Context, id string, update models.StatusUpdate) (*models.StatusRecord, error)

	// CompareAndMerge applies the update built from the current record only when
	// its status is one of allowed. Check and write happen under one lock hold.
	CompareAndMerge(ctx context.Context, id string, allowed []models.JobStatus, build func(current *models.StatusRecord) models.StatusUpdate) (*models.StatusRecord, error)

	Delete(ctx context.Context, ids ...string) (int, error)
	DeleteWhere(ctx context.Context, match func(record *models.StatusRecord) bool) ([]*models.StatusRecord, error)
	Counts(ctx context.Context) (map[models.JobStatus]int, error)

	// SessionCompleted counts jobs this process moved to Completed
	SessionCompleted() int64
}
