package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/jobs"
)

// formatJobList formats job records as a markdown list
func formatJobList(records []*models.StatusRecord, status models.JobStatus) string {
	var sb strings.Builder
	if status != "" {
		sb.WriteString(fmt.Sprintf("## %s Jobs (%d)\n\n", status, len(records)))
	} else {
		sb.WriteString(fmt.Sprintf("## Jobs (%d)\n\n", len(records)))
	}

	if len(records) == 0 {
		sb.WriteString("No jobs found.\n")
		return sb.String()
	}

	for i, record := range records {
		sb.WriteString(fmt.Sprintf("%d. **%s** `%s` - %s %.0f%%\n", i+1, record.FileName, record.ID, record.Status, record.Progress))
		if record.SubmittedTime != nil {
			sb.WriteString(fmt.Sprintf("   Submitted: %s\n", record.SubmittedTime.Format(time.RFC3339)))
		}
		if record.Error != "" {
			sb.WriteString(fmt.Sprintf("   Error: %s\n", record.Error))
		}
	}

	return sb.String()
}

// formatJob formats one status record as markdown
func formatJob(record *models.StatusRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", record.FileName))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", record.ID))
	sb.WriteString(fmt.Sprintf("**Status:** %s (%.0f%%)\n", record.Status, record.Progress))
	sb.WriteString(fmt.Sprintf("**Format:** %s\n", record.ExportFormat))
	if names := record.Enrichment.Names(); len(names) > 0 {
		sb.WriteString(fmt.Sprintf("**Enrichment:** %s\n", strings.Join(names, ", ")))
	}
	if record.PageCount > 0 {
		sb.WriteString(fmt.Sprintf("**Pages:** %d\n", record.PageCount))
	}

	writeTime(&sb, "Submitted", record.SubmittedTime)
	writeTime(&sb, "Queued", record.QueuedTime)
	writeTime(&sb, "Started", record.StartTime)
	writeTime(&sb, "Ended", record.EndTime)
	if record.ReprocessCount > 0 {
		sb.WriteString(fmt.Sprintf("**Reprocessed:** %d times\n", record.ReprocessCount))
	}

	if record.OutputFile != "" {
		sb.WriteString("\n## Output\n\n")
		sb.WriteString(fmt.Sprintf("- Result: %s\n", record.OutputFile))
		if record.ImagesExtracted != nil {
			sb.WriteString(fmt.Sprintf("- Images: %d\n", *record.ImagesExtracted))
		}
		if record.ChunksFile != "" && record.ChunkCount != nil {
			sb.WriteString(fmt.Sprintf("- Chunks: %d (%s)\n", *record.ChunkCount, record.ChunksFile))
		}
		if record.PrintableFile != "" {
			sb.WriteString(fmt.Sprintf("- Printable: %s\n", record.PrintableFile))
		}
	}

	if record.Error != "" {
		sb.WriteString("\n## Error\n\n")
		sb.WriteString(record.Error)
		sb.WriteString("\n")
		if details := record.ErrorDetails; details != nil {
			sb.WriteString(fmt.Sprintf("\n**Kind:** %s\n", details.Kind))
			if details.ExitCode != nil {
				sb.WriteString(fmt.Sprintf("**Exit code:** %d\n", *details.ExitCode))
			}
			if details.Stderr != "" {
				sb.WriteString("\n```\n")
				sb.WriteString(details.Stderr)
				sb.WriteString("\n```\n")
			}
		}
	}

	return sb.String()
}

func writeTime(sb *strings.Builder, label string, t *time.Time) {
	if t != nil {
		sb.WriteString(fmt.Sprintf("**%s:** %s\n", label, t.Format(time.RFC3339)))
	}
}

// formatSummary formats the status counts as a markdown table
func formatSummary(summary *jobs.Summary) string {
	var sb strings.Builder
	sb.WriteString("## Queue Status\n\n")
	sb.WriteString("| Status | Jobs |\n|---|---|\n")
	for _, status := range models.JobStatuses {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", status, summary.Counts[status]))
	}
	sb.WriteString(fmt.Sprintf("\n**Total:** %d\n", summary.Total))
	sb.WriteString(fmt.Sprintf("**Queue length:** %d\n", summary.QueueLength))
	sb.WriteString(fmt.Sprintf("**Completed this session:** %d\n", summary.SessionCompleted))
	return sb.String()
}
