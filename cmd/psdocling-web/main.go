// -----------------------------------------------------------------------
// psdocling-web - Serves the browser UI once the control server is up
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/webui"
)

var (
	configFiles  common.ConfigPaths
	webPort      = flag.Int("port", 0, "Web UI port (overrides config)")
	webDir       = flag.String("dir", "", "Directory to serve (overrides config)")
	apiURL       = flag.String("api", "", "Control server URL (overrides config)")
	skipWait     = flag.Bool("no-wait", false, "Start without waiting for the control server")
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
		fmt.Printf("psdocling-web version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	paths := common.DiscoverConfigFiles(configFiles)
	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", paths).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}
	if *webPort != 0 {
		config.Web.Port = *webPort
	}
	if *webDir != "" {
		config.Web.Dir = *webDir
	}
	if *apiURL != "" {
		config.Web.APIURL = *apiURL
	}

	common.InstallCrashHandler(config.Logging.Dir, "psdocling-web")
	defer common.RecoverWithCrashFile()

	logger := common.InitLogger(config, "psdocling-web")
	common.PrintBanner("PSDOCLING WEB")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if !*skipWait {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		err := webui.WaitForBackend(ctx, nil, config.Web.APIURL, config.Web.WaitAttempts,
			common.ParseDuration(config.Web.WaitInterval, time.Second), logger)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("api_url", config.Web.APIURL).Msg("Control server is not available")
		}
	}

	srv := webui.NewServer(&config.Web, logger)
	serverErr := make(chan error, 1)
	go func() {
		defer common.RecoverWithCrashFile()
		serverErr <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Web.Host, config.Web.Port)).
		Msg("Web UI ready - Press Ctrl+C to stop")

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("Web server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Web server shutdown failed")
	}
	logger.Info().Msg("Web UI stopped")
}
