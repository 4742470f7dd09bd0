// Package lock provides a named mutual-exclusion primitive shared by unrelated
// processes on one host. Each name maps to an advisory flock on a file in the
// lock directory.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"
)

// DefaultTimeout bounds lock acquisition when no timeout is configured
const DefaultTimeout = 5 * time.Second

const retryDelay = 25 * time.Millisecond

// ErrLockTimeout is returned when a lock could not be acquired in time.
// Callers treat it as retryable.
var ErrLockTimeout = errors.New("lock acquisition timed out")

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Locker hands out named cross-process locks under one directory and namespace
type Locker struct {
	dir       string
	namespace string
	timeout   time.Duration
}

// NewLocker creates the lock directory if needed
func NewLocker(dir, namespace string, timeout time.Duration) (*Locker, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if namespace == "" {
		namespace = "psdocling"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &Locker{
		dir:       dir,
		namespace: namespace,
		timeout:   timeout,
	}, nil
}

// Path returns the lock file backing the given name
func (l *Locker) Path(name string) string {
	return filepath.Join(l.dir, l.namespace+"-"+name+".lock")
}

// Timeout returns the default acquisition bound
func (l *Locker) Timeout() time.Duration {
	return l.timeout
}

// Do runs fn while holding the named lock, using the default timeout
func (l *Locker) Do(ctx context.Context, name string, fn func() error) error {
	return l.DoTimeout(ctx, name, l.timeout, fn)
}

// DoTimeout runs fn while holding the named lock. The lock is released on every
// exit path, including a panic inside fn.
func (l *Locker) DoTimeout(ctx context.Context, name string, timeout time.Duration, fn func() error) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid lock name %q", name)
	}

	// A new handle per acquisition: flock conflicts between separate open file
	// descriptions, so goroutines contend the same way processes do.
	fileLock := flock.New(l.Path(name))

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %q after %s", ErrLockTimeout, name, timeout)
		}
		return fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	if !locked {
		return fmt.Errorf("%w: %q after %s", ErrLockTimeout, name, timeout)
	}
	defer fileLock.Unlock()

	return fn()
}

// WithLock runs fn under the named lock and returns its result
func WithLock[T any](ctx context.Context, l *Locker, name string, fn func() (T, error)) (T, error) {
	var result T
	err := l.Do(ctx, name, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}
