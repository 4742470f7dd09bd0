package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/psdocling/internal/app"
	"github.com/ternarybob/psdocling/internal/common"
)

func main() {
	var paths []string
	if configPath := os.Getenv("PSDOCLING_CONFIG"); configPath != "" {
		paths = []string{configPath}
	} else {
		paths = common.DiscoverConfigFiles(nil)
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol, so logs stay minimal and go to the console writer only
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"psdocling",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	jobService := application.JobService
	mcpServer.AddTool(createListJobsTool(), handleListJobs(jobService, logger))
	mcpServer.AddTool(createGetJobTool(), handleGetJob(jobService, logger))
	mcpServer.AddTool(createQueueStatusTool(), handleQueueStatus(jobService, logger))
	mcpServer.AddTool(createStartJobTool(), handleStartJob(jobService, logger))
	mcpServer.AddTool(createCancelJobTool(), handleCancelJob(jobService, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
