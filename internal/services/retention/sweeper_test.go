package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/lock"
	"github.com/ternarybob/psdocling/internal/logs"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/storage/jsonfile"
)

func setupSweeper(t *testing.T) (*Sweeper, *jsonfile.StatusStorage, string) {
	t.Helper()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	locker, err := lock.NewLocker(dir, "test", 5*time.Second)
	require.NoError(t, err)
	status := jsonfile.NewStatusStorage(filepath.Join(dir, "status.json"), locker, logger)
	jobLogs, err := logs.NewStorage(filepath.Join(dir, "job_logs"))
	require.NoError(t, err)

	sweeper := NewSweeper(status, jobLogs, Options{
		UploadsDir: filepath.Join(dir, "uploads"),
		OutputDir:  filepath.Join(dir, "output"),
		MaxAge:     24 * time.Hour,
	}, logger)
	return sweeper, status, dir
}

func makeJobDirs(t *testing.T, dir, id string) {
	t.Helper()
	for _, root := range []string{"uploads", "output"} {
		path := filepath.Join(dir, root, id)
		require.NoError(t, os.MkdirAll(path, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(path, "file.md"), []byte("x"), 0644))
	}
}

func TestSweep_RemovesExpiredTerminalJobs(t *testing.T) {
	sweeper, status, dir := setupSweeper(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	jobs := map[string]models.StatusUpdate{
		"expired":   {Status: models.Ptr(models.StatusCompleted), EndTime: &old},
		"recent":    {Status: models.Ptr(models.StatusError), EndTime: &recent},
		"in-flight": {Status: models.Ptr(models.StatusProcessing), StartTime: &old},
	}
	for id, update := range jobs {
		_, err := status.Merge(ctx, id, update)
		require.NoError(t, err)
		makeJobDirs(t, dir, id)
	}

	stats, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecordsRemoved)

	record, err := status.Get(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoDirExists(t, filepath.Join(dir, "uploads", "expired"))
	assert.NoDirExists(t, filepath.Join(dir, "output", "expired"))

	for _, id := range []string{"recent", "in-flight"} {
		record, err := status.Get(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, record, id)
		assert.DirExists(t, filepath.Join(dir, "uploads", id))
	}
}

func TestSweep_RemovesOldOrphans(t *testing.T) {
	sweeper, _, dir := setupSweeper(t)
	old := time.Now().Add(-48 * time.Hour)

	makeJobDirs(t, dir, "old-orphan")
	makeJobDirs(t, dir, "new-orphan")
	for _, root := range []string{"uploads", "output"} {
		require.NoError(t, os.Chtimes(filepath.Join(dir, root, "old-orphan"), old, old))
	}

	stats, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OrphansRemoved)
	assert.NoDirExists(t, filepath.Join(dir, "uploads", "old-orphan"))
	assert.DirExists(t, filepath.Join(dir, "uploads", "new-orphan"))
}

func TestStart_RejectsInvalidSchedule(t *testing.T) {
	sweeper, _, _ := setupSweeper(t)
	assert.Error(t, sweeper.Start("every tuesday"))
}
