package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/models"
)

// Summary is the aggregate view returned by the status endpoint
type Summary struct {
	Counts           map[models.JobStatus]int `json:"counts"`
	QueueLength      int                      `json:"queueLength"`
	Total            int                      `json:"total"`
	SessionCompleted int64                    `json:"sessionCompleted"`
}

// ErrorReport describes why a job failed. Only jobs in Error report a
// failure; jobs that are still running never do.
type ErrorReport struct {
	ID           string               `json:"id"`
	Status       models.JobStatus     `json:"status"`
	HasError     bool                 `json:"hasError"`
	Error        string               `json:"error,omitempty"`
	ErrorDetails *models.ErrorDetails `json:"errorDetails,omitempty"`
}

// Get returns a job record or interfaces.ErrJobNotFound
func (s *Service) Get(ctx context.Context, id string) (*models.StatusRecord, error) {
	record, err := s.status.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, id)
	}
	return record, nil
}

// List returns every job, most recently submitted first
func (s *Service) List(ctx context.Context) ([]*models.StatusRecord, error) {
	all, err := s.status.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*models.StatusRecord, 0, len(all))
	for _, record := range all {
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		ti, tj := sortTime(records[i]), sortTime(records[j])
		if ti.Equal(tj) {
			return records[i].ID < records[j].ID
		}
		return ti.After(tj)
	})
	return records, nil
}

func sortTime(record *models.StatusRecord) time.Time {
	if record.SubmittedTime != nil {
		return *record.SubmittedTime
	}
	return record.UpdatedTime
}

// Summary returns per-status counts and the queue length
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	counts, err := s.status.Counts(ctx)
	if err != nil {
		return nil, err
	}
	queueLength, err := s.queue.Len(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	return &Summary{
		Counts:           counts,
		QueueLength:      queueLength,
		Total:            total,
		SessionCompleted: s.status.SessionCompleted(),
	}, nil
}

// ErrorReport returns the failure details of a job
func (s *Service) ErrorReport(ctx context.Context, id string) (*ErrorReport, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ErrorReport{
		ID:     record.ID,
		Status: record.Status,
	}
	if record.Status == models.StatusError {
		report.HasError = true
		report.Error = record.Error
		report.ErrorDetails = record.ErrorDetails
	}
	return report, nil
}

// ResultPath returns the output file of a completed job
func (s *Service) ResultPath(ctx context.Context, id string) (*models.StatusRecord, string, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if record.Status != models.StatusCompleted || record.OutputFile == "" {
		return record, "", fmt.Errorf("%w: job %s is %s", ErrResultUnavailable, id, record.Status)
	}
	if !fileExists(record.OutputFile) {
		return record, "", fmt.Errorf("%w: output file for %s is missing", ErrResultUnavailable, id)
	}
	return record, record.OutputFile, nil
}

// Logs returns the last limit worker log lines of a job
func (s *Service) Logs(ctx context.Context, id string, limit int) ([]models.JobLogEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.jobLogs == nil {
		return []models.JobLogEntry{}, nil
	}
	return s.jobLogs.GetLogs(id, limit)
}

// OutputDir exposes the output root for file listings
func (s *Service) OutputDir() string {
	return s.options.OutputDir
}
