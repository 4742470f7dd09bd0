package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List conversion jobs, most recently submitted first"),
		mcp.WithString("status",
			mcp.Description("Filter: Ready, Queued, Processing, Completed, Error, Cancelled"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 200)"),
		),
	)
}

// createGetJobTool returns the get_job tool definition
func createGetJobTool() mcp.Tool {
	return mcp.NewTool("get_job",
		mcp.WithDescription("Show the full status record of one job, including error details"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (UUID)"),
		),
	)
}

// createQueueStatusTool returns the queue_status tool definition
func createQueueStatusTool() mcp.Tool {
	return mcp.NewTool("queue_status",
		mcp.WithDescription("Summarise job counts per status and the queue length"),
	)
}

// createStartJobTool returns the start_job tool definition
func createStartJobTool() mcp.Tool {
	return mcp.NewTool("start_job",
		mcp.WithDescription("Queue a Ready job for conversion, or reprocess a finished one"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (UUID)"),
		),
		mcp.WithString("format",
			mcp.Description("Export format: markdown, html, json, text, doctags"),
		),
		mcp.WithBoolean("reprocess",
			mcp.Description("Reprocess a Completed, Error or Cancelled job"),
		),
	)
}

// createCancelJobTool returns the cancel_job tool definition
func createCancelJobTool() mcp.Tool {
	return mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a queued or processing job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (UUID)"),
		),
	)
}
