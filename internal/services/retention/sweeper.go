// -----------------------------------------------------------------------
// Retention - Scheduled removal of expired jobs and their files
// -----------------------------------------------------------------------

package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/logs"
	"github.com/ternarybob/psdocling/internal/models"
)

// DefaultSchedule runs the sweep hourly
const DefaultSchedule = "0 * * * *"

// Options configures the sweeper
type Options struct {
	UploadsDir string
	OutputDir  string
	MaxAge     time.Duration
}

// OptionsFromConfig builds sweeper options from the application config
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		UploadsDir: config.Storage.UploadsDir,
		OutputDir:  config.Storage.OutputDir,
		MaxAge:     common.ParseDuration(config.Retention.MaxAge, 7*24*time.Hour),
	}
}

// Stats summarises one sweep
type Stats struct {
	RecordsRemoved int
	OrphansRemoved int
	Duration       time.Duration
}

// Sweeper deletes terminal jobs older than the retention age together with
// their uploads, output and logs. Directories with no status record are
// removed once they are older than the same age.
type Sweeper struct {
	status  interfaces.StatusStorage
	jobLogs *logs.Storage
	options Options
	cron    *cron.Cron
	logger  arbor.ILogger
	now     func() time.Time
}

// NewSweeper creates a new retention sweeper
func NewSweeper(status interfaces.StatusStorage, jobLogs *logs.Storage, options Options, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		status:  status,
		jobLogs: jobLogs,
		options: options,
		cron:    cron.New(),
		logger:  logger,
		now:     time.Now,
	}
}

// Start schedules the sweep using a standard 5-field cron expression
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := s.cron.AddFunc(schedule, s.runSweep)
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Str("max_age", s.options.MaxAge.String()).
		Msg("Retention sweeper started")

	return nil
}

// Stop stops the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Retention sweeper stopped")
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stats, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return
	}

	s.logger.Info().
		Int("records_removed", stats.RecordsRemoved).
		Int("orphans_removed", stats.OrphansRemoved).
		Str("duration", stats.Duration.String()).
		Msg("Retention sweep completed")
}

// Sweep performs one retention pass
func (s *Sweeper) Sweep(ctx context.Context) (*Stats, error) {
	started := s.now()
	cutoff := started.Add(-s.options.MaxAge)
	stats := &Stats{}

	removed, err := s.status.DeleteWhere(ctx, func(record *models.StatusRecord) bool {
		if !record.Status.IsTerminal() {
			return false
		}
		finished := record.UpdatedTime
		if record.EndTime != nil {
			finished = *record.EndTime
		}
		return finished.Before(cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove expired records: %w", err)
	}

	for _, record := range removed {
		s.removeJobFiles(record.ID)
	}
	stats.RecordsRemoved = len(removed)

	records, err := s.status.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status records: %w", err)
	}
	for _, root := range []string{s.options.UploadsDir, s.options.OutputDir} {
		stats.OrphansRemoved += s.removeOrphans(root, records, cutoff)
	}

	stats.Duration = s.now().Sub(started)
	return stats, nil
}

func (s *Sweeper) removeJobFiles(id string) {
	for _, root := range []string{s.options.UploadsDir, s.options.OutputDir} {
		if root == "" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, id)); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to remove job files")
		}
	}
	if s.jobLogs != nil {
		if err := s.jobLogs.DeleteLogs(id); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to remove job logs")
		}
	}
}

// removeOrphans deletes job directories under root that have no status
// record and were last modified before cutoff
func (s *Sweeper) removeOrphans(root string, records map[string]*models.StatusRecord, cutoff time.Time) int {
	if root == "" {
		return 0
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", root).Msg("Failed to scan for orphaned job directories")
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := records[entry.Name()]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("dir", entry.Name()).Msg("Failed to remove orphaned job directory")
			continue
		}
		removed++
	}
	return removed
}
