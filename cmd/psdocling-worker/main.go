// -----------------------------------------------------------------------
// psdocling-worker - Runs queued conversions through the engine
// -----------------------------------------------------------------------

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/app"
	"github.com/ternarybob/psdocling/internal/common"
)

var (
	configFiles  common.ConfigPaths
	engineCmd    = flag.String("engine", "", "Engine command line (overrides config)")
	stateDir     = flag.String("state-dir", "", "Shared state directory (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("psdocling-worker version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	paths := common.DiscoverConfigFiles(configFiles)
	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", paths).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}
	if *engineCmd != "" {
		config.Engine.Command = strings.Fields(*engineCmd)
	}
	if *stateDir != "" {
		// Derived paths were resolved from the old state dir
		config.Storage.StateDir = *stateDir
		config.Storage.QueueFile = ""
		config.Storage.StatusFile = ""
		config.Storage.UploadsDir = ""
		config.Storage.OutputDir = ""
		config.Storage.JobLogsDir = ""
		config.Lock.Dir = ""
		config.ResolvePaths()
	}

	common.InstallCrashHandler(config.Logging.Dir, "psdocling-worker")
	defer common.RecoverWithCrashFile()

	logger := common.InitLogger(config, "psdocling-worker")
	common.PrintBanner("PSDOCLING WORKER")

	logger.Info().
		Strs("config_files", paths).
		Str("state_dir", config.Storage.StateDir).
		Strs("engine", config.Engine.Command).
		Str("poll_interval", config.Worker.PollInterval).
		Msg("Worker configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	application.InitWorker()
	application.Worker.Start()

	logger.Info().Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-application.Worker.Done():
		application.Close()
		logger.Fatal().Err(err).Msg("Worker stopped after repeated storage failures")
	}

	// Close stops the loop and finalises the running job before exit
	application.Close()
	logger.Info().Msg("Worker process exiting")
}
