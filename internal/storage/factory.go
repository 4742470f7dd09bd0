package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/storage/jsonfile"
)

// Stores bundles the shared state every process opens
type Stores struct {
	Locker *lock.Locker
	Queue  *jsonfile.QueueStorage
	Status *jsonfile.StatusStorage
}

// NewStores opens the queue and status stores described by config
func NewStores(logger arbor.ILogger, config *common.Config) (*Stores, error) {
	lockTimeout := common.ParseDuration(config.Lock.Timeout, lock.DefaultTimeout)

	locker, err := lock.NewLocker(config.Lock.Dir, config.Lock.Namespace, lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize locks: %w", err)
	}

	logger.Debug().
		Str("queue_file", config.Storage.QueueFile).
		Str("status_file", config.Storage.StatusFile).
		Str("lock_dir", config.Lock.Dir).
		Str("lock_timeout", lockTimeout.String()).
		Msg("State stores initialized")

	return &Stores{
		Locker: locker,
		Queue:  jsonfile.NewQueueStorage(config.Storage.QueueFile, locker, logger),
		Status: jsonfile.NewStatusStorage(config.Storage.StatusFile, locker, logger),
	}, nil
}
