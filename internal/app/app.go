// -----------------------------------------------------------------------
// App - Wires stores, services and handlers for each process
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/handlers"
	"github.com/ternarybob/psdocling/internal/logs"
	"github.com/ternarybob/psdocling/internal/services/chunking"
	"github.com/ternarybob/psdocling/internal/services/inspect"
	"github.com/ternarybob/psdocling/internal/services/jobs"
	"github.com/ternarybob/psdocling/internal/services/printable"
	"github.com/ternarybob/psdocling/internal/services/retention"
	"github.com/ternarybob/psdocling/internal/storage"
	"github.com/ternarybob/psdocling/internal/worker"
)

// App holds the components shared by the control server, the worker and the
// MCP server. Each process builds only the parts it runs.
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Shared state
	Stores  *storage.Stores
	JobLogs *logs.Storage

	// Services
	Inspector  *inspect.Inspector
	JobService *jobs.Service

	// Worker process
	Worker      *worker.Worker
	LogConsumer *logs.Consumer // Captures correlated worker logs per job

	// Control server process
	Sweeper     *retention.Sweeper
	APIHandler  *handlers.APIHandler
	JobHandler  *handlers.JobHandler
	FileHandler *handlers.FileHandler
	StatusFeed  *handlers.StatusFeed
}

// New opens the shared stores and creates the job service
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.Inspector = inspect.NewInspector(logger)
	app.JobService = jobs.NewService(
		app.Stores.Queue,
		app.Stores.Status,
		app.Inspector,
		app.JobLogs,
		jobs.OptionsFromConfig(cfg),
		logger,
	)

	logger.Debug().
		Str("state_dir", cfg.Storage.StateDir).
		Str("uploads_dir", cfg.Storage.UploadsDir).
		Str("output_dir", cfg.Storage.OutputDir).
		Msg("Application core initialized")

	return app, nil
}

// initStorage opens the queue and status stores and the job log directory
func (a *App) initStorage() error {
	stores, err := storage.NewStores(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.Stores = stores

	jobLogs, err := logs.NewStorage(a.Config.Storage.JobLogsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize job log storage: %w", err)
	}
	a.JobLogs = jobLogs
	return nil
}

// InitServer creates the HTTP handlers, the status feed and, when enabled,
// the retention sweeper
func (a *App) InitServer() error {
	maxUpload := int64(a.Config.Upload.MaxSizeMB) * 1024 * 1024

	a.APIHandler = handlers.NewAPIHandler(a.JobService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, maxUpload, a.Logger)
	a.FileHandler = handlers.NewFileHandler(a.JobService, a.Logger)
	a.StatusFeed = handlers.NewStatusFeed(
		a.Stores.Status,
		common.ParseDuration(a.Config.WebSocket.PollInterval, 0),
		a.Logger,
	)
	a.StatusFeed.Start(a.ctx)

	if a.Config.Retention.Enabled {
		a.Sweeper = retention.NewSweeper(a.Stores.Status, a.JobLogs, retention.OptionsFromConfig(a.Config), a.Logger)
		if err := a.Sweeper.Start(a.Config.Retention.Schedule); err != nil {
			return fmt.Errorf("failed to start retention sweeper: %w", err)
		}
	}

	return nil
}

// InitWorker creates the worker and routes its correlated logs into the
// per-job log files
func (a *App) InitWorker() {
	a.LogConsumer = logs.NewConsumer(a.JobLogs, a.Logger, a.Config.Logging.JobLevel)
	a.LogConsumer.Start()
	a.Logger.SetChannel("context", a.LogConsumer.GetChannel())

	a.Worker = worker.NewWorker(
		a.Stores.Queue,
		a.Stores.Status,
		chunking.NewService(a.Logger),
		a.Inspector,
		printable.NewRenderer(a.Logger),
		worker.OptionsFromConfig(a.Config),
		a.Logger,
	)
}

// Close stops background work
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.Worker != nil {
		a.Worker.Stop()
	}

	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	if a.LogConsumer != nil {
		a.LogConsumer.Stop()
		a.Logger.Info().Msg("Log consumer stopped")
	}

	return nil
}
