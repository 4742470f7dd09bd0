package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/models"
	"github.com/ternarybob/psdocling/internal/services/jobs"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleListJobs implements the list_jobs tool
func handleListJobs(jobService *jobs.Service, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit <= 0 || limit > 200 {
			limit = 200
		}
		status := models.JobStatus(request.GetString("status", ""))

		records, err := jobService.List(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List jobs failed")
			return textResult(fmt.Sprintf("List error: %v", err)), nil
		}

		return textResult(formatJobList(filterJobs(records, status, limit), status)), nil
	}
}

func filterJobs(records []*models.StatusRecord, status models.JobStatus, limit int) []*models.StatusRecord {
	filtered := make([]*models.StatusRecord, 0, len(records))
	for _, record := range records {
		if status != "" && record.Status != status {
			continue
		}
		filtered = append(filtered, record)
		if len(filtered) == limit {
			break
		}
	}
	return filtered
}

// handleGetJob implements the get_job tool
func handleGetJob(jobService *jobs.Service, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("job_id")
		if err != nil || id == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		record, err := jobService.Get(ctx, id)
		if err != nil {
			logger.Debug().Err(err).Str("job_id", id).Msg("Get job failed")
			return textResult(fmt.Sprintf("Job not found: %v", err)), nil
		}

		return textResult(formatJob(record)), nil
	}
}

// handleQueueStatus implements the queue_status tool
func handleQueueStatus(jobService *jobs.Service, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := jobService.Summary(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Queue summary failed")
			return textResult(fmt.Sprintf("Status error: %v", err)), nil
		}
		return textResult(formatSummary(summary)), nil
	}
}

// handleStartJob implements the start_job tool
func handleStartJob(jobService *jobs.Service, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("job_id")
		if err != nil || id == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		var opts *jobs.JobOptions
		if format := request.GetString("format", ""); format != "" {
			opts = &jobs.JobOptions{ExportFormat: format}
		}

		var record *models.StatusRecord
		if request.GetBool("reprocess", false) {
			record, err = jobService.Reprocess(ctx, id, opts)
		} else {
			record, err = jobService.Start(ctx, id, opts)
		}
		if err != nil {
			logger.Warn().Err(err).Str("job_id", id).Msg("Start job rejected")
			return textResult(fmt.Sprintf("Start error: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Job %s is %s.\n", record.ID, record.Status)), nil
	}
}

// handleCancelJob implements the cancel_job tool
func handleCancelJob(jobService *jobs.Service, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("job_id")
		if err != nil || id == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		record, err := jobService.Cancel(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("job_id", id).Msg("Cancel job rejected")
			return textResult(fmt.Sprintf("Cancel error: %v", err)), nil
		}

		if record.CancelRequested && !record.Status.IsTerminal() {
			return textResult(fmt.Sprintf("Cancellation requested for job %s; the worker will stop it shortly.\n", record.ID)), nil
		}
		return textResult(fmt.Sprintf("Job %s is %s.\n", record.ID, record.Status)), nil
	}
}
