package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, dir string, timeout time.Duration) *Locker {
	t.Helper()
	locker, err := NewLocker(dir, "test", timeout)
	require.NoError(t, err)
	return locker
}

func TestWithLock_ReturnsResult(t *testing.T) {
	locker := newTestLocker(t, t.TempDir(), time.Second)

	value, err := WithLock(context.Background(), locker, "queue", func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)

	_, err = os.Stat(filepath.Join(locker.dir, "test-queue.lock"))
	assert.NoError(t, err)
}

func TestDo_TimesOutWhileHeld(t *testing.T) {
	dir := t.TempDir()
	holder := newTestLocker(t, dir, time.Second)
	waiter := newTestLocker(t, dir, 100*time.Millisecond)

	acquired := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- holder.Do(context.Background(), "status", func() error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	start := time.Now()
	err := waiter.Do(context.Background(), "status", func() error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, <-done)

	// Released locks can be taken again
	assert.NoError(t, waiter.Do(context.Background(), "status", func() error { return nil }))
}

func TestDo_NamesAreIndependent(t *testing.T) {
	dir := t.TempDir()
	locker := newTestLocker(t, dir, 100*time.Millisecond)

	err := locker.Do(context.Background(), "queue", func() error {
		return locker.Do(context.Background(), "status", func() error { return nil })
	})
	assert.NoError(t, err)
}

func TestDo_ReleasesOnErrorAndPanic(t *testing.T) {
	locker := newTestLocker(t, t.TempDir(), 200*time.Millisecond)
	sentinel := errors.New("boom")

	err := locker.Do(context.Background(), "queue", func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	assert.Panics(t, func() {
		_ = locker.Do(context.Background(), "queue", func() error { panic("fn panicked") })
	})

	assert.NoError(t, locker.Do(context.Background(), "queue", func() error { return nil }))
}

func TestDo_RejectsInvalidName(t *testing.T) {
	locker := newTestLocker(t, t.TempDir(), time.Second)
	assert.Error(t, locker.Do(context.Background(), "../escape", func() error { return nil }))
	assert.Error(t, locker.Do(context.Background(), "", func() error { return nil }))
}

func TestDo_SerializesReadModifyWrite(t *testing.T) {
	dir := t.TempDir()
	counterPath := filepath.Join(dir, "counter")
	require.NoError(t, os.WriteFile(counterPath, []byte("0"), 0644))

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		// Separate lockers stand in for separate processes
		locker := newTestLocker(t, dir, 5*time.Second)
		go func() {
			defer wg.Done()
			err := locker.Do(context.Background(), "counter", func() error {
				data, err := os.ReadFile(counterPath)
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(string(data))
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				return os.WriteFile(counterPath, []byte(strconv.Itoa(n+1)), 0644)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(counterPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers), string(data))
}
