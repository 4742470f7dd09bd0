package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/jobs"
)

func TestFilterJobs(t *testing.T) {
	records := []*models.StatusRecord{
		{ID: "a", Status: models.StatusCompleted},
		{ID: "b", Status: models.StatusError},
		{ID: "c", Status: models.StatusCompleted},
		{ID: "d", Status: models.StatusCompleted},
	}

	completed := filterJobs(records, models.StatusCompleted, 2)
	assert.Len(t, completed, 2)
	assert.Equal(t, "a", completed[0].ID)
	assert.Equal(t, "c", completed[1].ID)

	assert.Len(t, filterJobs(records, "", 10), 4)
}

func TestFormatJob_IncludesErrorDetails(t *testing.T) {
	submitted := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	record := &models.StatusRecord{
		ID:            "job-1",
		FileName:      "report.pdf",
		Status:        models.StatusError,
		ExportFormat:  models.FormatMarkdown,
		Enrichment:    models.Enrichment{Code: true},
		SubmittedTime: &submitted,
		Error:         "engine exited with code 2",
		ErrorDetails:  &models.ErrorDetails{Kind: models.ErrorKindEngine, ExitCode: models.Ptr(2), Stderr: "boom"},
	}

	text := formatJob(record)
	assert.Contains(t, text, "# report.pdf")
	assert.Contains(t, text, "**Enrichment:** code")
	assert.Contains(t, text, "2025-01-02T03:04:05Z")
	assert.Contains(t, text, "**Exit code:** 2")
	assert.Contains(t, text, "boom")
}

func TestFormatSummary_ListsEveryStatus(t *testing.T) {
	text := formatSummary(&jobs.Summary{
		Counts:      map[models.JobStatus]int{models.StatusQueued: 3},
		QueueLength: 3,
		Total:       3,
	})

	for _, status := range models.JobStatuses {
		assert.Contains(t, text, string(status))
	}
	assert.Contains(t, text, "| Queued | 3 |")
	assert.Contains(t, text, "**Queue length:** 3")
}

func TestFormatJobList_Empty(t *testing.T) {
	assert.Contains(t, formatJobList(nil, models.StatusError), "No jobs found.")
}
