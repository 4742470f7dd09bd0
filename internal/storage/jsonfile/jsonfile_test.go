package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/models"
)

func newTestStores(t *testing.T) (*QueueStorage, *StatusStorage, string) {
	t.Helper()
	dir := t.TempDir()
	return openStores(t, dir), openStatus(t, dir), dir
}

func openStores(t *testing.T, dir string) *QueueStorage {
	t.Helper()
	locker, err := lock.NewLocker(dir, "test", 5*time.Second)
	require.NoError(t, err)
	return NewQueueStorage(filepath.Join(dir, "queue.json"), locker, arbor.NewLogger())
}

func openStatus(t *testing.T, dir string) *StatusStorage {
	t.Helper()
	locker, err := lock.NewLocker(dir, "test", 5*time.Second)
	require.NoError(t, err)
	return NewStatusStorage(filepath.Join(dir, "status.json"), locker, arbor.NewLogger())
}

func descriptor(id string) *models.JobDescriptor {
	return &models.JobDescriptor{
		ID:           id,
		FileName:     id + ".pdf",
		FilePath:     "/uploads/" + id + ".pdf",
		ExportFormat: models.FormatMarkdown,
		QueuedTime:   time.Now(),
	}
}

func TestQueueStorage_FIFO(t *testing.T) {
	queue, _, _ := newTestStores(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Enqueue(ctx, descriptor(id)))
	}

	for _, expected := range []string{"a", "b", "c"} {
		head, err := queue.DequeueOldest(ctx)
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, expected, head.ID)
	}

	head, err := queue.DequeueOldest(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestQueueStorage_DequeueEmptyDoesNotWrite(t *testing.T) {
	queue, _, dir := newTestStores(t)

	head, err := queue.DequeueOldest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, head)

	_, err = os.Stat(filepath.Join(dir, "queue.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestQueueStorage_ConcurrentEnqueue(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	const producers = 20
	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		// Each producer opens its own store, as separate processes would
		queue := openStores(t, dir)
		id := fmt.Sprintf("job-%02d", i)
		go func() {
			defer wg.Done()
			assert.NoError(t, queue.Enqueue(ctx, descriptor(id)))
		}()
	}
	wg.Wait()

	entries, err := openStores(t, dir).ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, producers)

	seen := make(map[string]bool)
	for _, entry := range entries {
		seen[entry.ID] = true
	}
	assert.Len(t, seen, producers)
}

func TestQueueStorage_Remove(t *testing.T) {
	queue, _, _ := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, descriptor("a")))
	require.NoError(t, queue.Enqueue(ctx, descriptor("b")))
	require.NoError(t, queue.Enqueue(ctx, descriptor("a")))

	removed, err := queue.Remove(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	length, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	removed, err = queue.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestQueueStorage_CorruptFileIsEmpty(t *testing.T) {
	queue, _, dir := newTestStores(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue.json"), []byte("{not json"), 0644))

	head, err := queue.DequeueOldest(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)

	require.NoError(t, queue.Enqueue(ctx, descriptor("a")))
	entries, err := queue.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}

func TestStatusStorage_MergePreservesOtherFields(t *testing.T) {
	_, status, _ := newTestStores(t)
	ctx := context.Background()

	_, err := status.Merge(ctx, "job-1", models.StatusUpdate{
		Status:   models.Ptr(models.StatusReady),
		FileName: models.Ptr("report.pdf"),
		FileSize: models.Ptr(int64(2048)),
	})
	require.NoError(t, err)

	_, err = status.Merge(ctx, "job-1", models.StatusUpdate{Progress: models.Ptr(42.0)})
	require.NoError(t, err)

	record, err := status.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.StatusReady, record.Status)
	assert.Equal(t, "report.pdf", record.FileName)
	assert.Equal(t, int64(2048), record.FileSize)
	assert.Equal(t, 42.0, record.Progress)
	assert.False(t, record.UpdatedTime.IsZero())
}

func TestStatusStorage_ConcurrentMergesOnDisjointFields(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	_, err := openStatus(t, dir).Merge(ctx, "job-1", models.StatusUpdate{Status: models.Ptr(models.StatusProcessing)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := openStatus(t, dir).Merge(ctx, "job-1", models.StatusUpdate{Progress: models.Ptr(60.0)})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := openStatus(t, dir).Merge(ctx, "job-1", models.StatusUpdate{CancelRequested: models.Ptr(true)})
		assert.NoError(t, err)
	}()
	wg.Wait()

	record, err := openStatus(t, dir).Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, record.Progress)
	assert.True(t, record.CancelRequested)
	assert.Equal(t, models.StatusProcessing, record.Status)
}

func TestStatusStorage_MergeRejectsInvalidUpdate(t *testing.T) {
	_, status, dir := newTestStores(t)
	ctx := context.Background()

	_, err := status.Merge(ctx, "job-1", models.StatusUpdate{Progress: models.Ptr(150.0)})
	assert.Error(t, err)

	_, err = status.Merge(ctx, "job-1", models.StatusUpdate{Status: models.Ptr(models.JobStatus("Exploded"))})
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, "status.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStatusStorage_CompareAndMerge(t *testing.T) {
	_, status, _ := newTestStores(t)
	ctx := context.Background()

	_, err := status.CompareAndMerge(ctx, "missing", []models.JobStatus{models.StatusReady}, func(*models.StatusRecord) models.StatusUpdate {
		return models.StatusUpdate{}
	})
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	_, err = status.Merge(ctx, "job-1", models.StatusUpdate{Status: models.Ptr(models.StatusReady)})
	require.NoError(t, err)

	toQueued := func(current *models.StatusRecord) models.StatusUpdate {
		return models.StatusUpdate{Status: models.Ptr(models.StatusQueued)}
	}

	record, err := status.CompareAndMerge(ctx, "job-1", []models.JobStatus{models.StatusReady}, toQueued)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, record.Status)

	_, err = status.CompareAndMerge(ctx, "job-1", []models.JobStatus{models.StatusReady}, toQueued)
	assert.ErrorIs(t, err, interfaces.ErrStatusConflict)

	var conflict *interfaces.StatusConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.StatusQueued, conflict.Current)
}

func TestStatusStorage_CorruptFileIsEmpty(t *testing.T) {
	_, status, dir := newTestStores(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status.json"), []byte("garbage"), 0644))

	all, err := status.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = status.Merge(ctx, "job-1", models.StatusUpdate{Status: models.Ptr(models.StatusReady)})
	require.NoError(t, err)

	all, err = status.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStatusStorage_DeleteAndCounts(t *testing.T) {
	_, status, _ := newTestStores(t)
	ctx := context.Background()

	for id, s := range map[string]models.JobStatus{
		"a": models.StatusCompleted,
		"b": models.StatusProcessing,
		"c": models.StatusError,
		"d": models.StatusReady,
	} {
		_, err := status.Merge(ctx, id, models.StatusUpdate{Status: models.Ptr(s)})
		require.NoError(t, err)
	}

	counts, err := status.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusCompleted])
	assert.Equal(t, 0, counts[models.StatusCancelled])

	removed, err := status.DeleteWhere(ctx, func(r *models.StatusRecord) bool { return !r.Status.InFlight() })
	require.NoError(t, err)
	assert.Len(t, removed, 3)

	n, err := status.Delete(ctx, "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := status.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStatusStorage_SessionCompletedCountsFirstTransition(t *testing.T) {
	_, status, _ := newTestStores(t)
	ctx := context.Background()

	_, err := status.Merge(ctx, "job-1", models.StatusUpdate{Status: models.Ptr(models.StatusCompleted)})
	require.NoError(t, err)
	_, err = status.Merge(ctx, "job-1", models.StatusUpdate{Status: models.Ptr(models.StatusCompleted), Progress: models.Ptr(100.0)})
	require.NoError(t, err)

	assert.Equal(t, int64(1), status.SessionCompleted())
}
