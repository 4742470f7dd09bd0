package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration shared by the control server,
// the conversion worker and the static web server.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Web         WebConfig       `toml:"web"`
	Storage     StorageConfig   `toml:"storage"`
	Lock        LockConfig      `toml:"lock"`
	Worker      WorkerConfig    `toml:"worker"`
	Engine      EngineConfig    `toml:"engine"`
	Timeouts    TimeoutsConfig  `toml:"timeouts"`
	Upload      UploadConfig    `toml:"upload"`
	Retention   RetentionConfig `toml:"retention"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port      int     `toml:"port"`
	Host      string  `toml:"host"`
	RateLimit float64 `toml:"rate_limit"` // Mutating requests per second (0 = unlimited)
	RateBurst int     `toml:"rate_burst"`
}

// WebConfig configures the static file server process
type WebConfig struct {
	Port         int    `toml:"port"`
	Host         string `toml:"host"`
	Dir          string `toml:"dir"`           // Directory served as the web UI
	APIURL       string `toml:"api_url"`       // Control server base URL advertised to the UI
	WaitAttempts int    `toml:"wait_attempts"` // Backend readiness probes before giving up
	WaitInterval string `toml:"wait_interval"` // Delay between readiness probes
}

// StorageConfig locates the shared state files and job directories.
// Empty paths are resolved relative to StateDir by ResolvePaths.
type StorageConfig struct {
	StateDir   string `toml:"state_dir"`
	QueueFile  string `toml:"queue_file"`
	StatusFile string `toml:"status_file"`
	UploadsDir string `toml:"uploads_dir"`
	OutputDir  string `toml:"output_dir"`
	JobLogsDir string `toml:"job_logs_dir"` // Per-job worker log lines
}

type LockConfig struct {
	Dir       string `toml:"dir"`
	Namespace string `toml:"namespace"` // Prefix for lock file names
	Timeout   string `toml:"timeout"`
}

type WorkerConfig struct {
	PollInterval    string `toml:"poll_interval"`    // Sleep between empty queue polls
	MonitorInterval string `toml:"monitor_interval"` // Engine subprocess poll interval
	ExitWait        string `toml:"exit_wait"`        // Bounded wait for engine exit after completion or kill
}

// EngineConfig describes how the external conversion engine is launched.
// Per-job positional arguments are appended to Command.
type EngineConfig struct {
	Command []string `toml:"command"`
	WorkDir string   `toml:"work_dir"`
	Env     []string `toml:"env"`
}

// TimeoutsConfig holds the engine time ceilings keyed by enabled enrichment
type TimeoutsConfig struct {
	Base               string `toml:"base"`
	PictureClasses     string `toml:"picture_classes"`
	CodeOrFormula      string `toml:"code_or_formula"`
	CodeAndFormula     string `toml:"code_and_formula"`
	PictureDescription string `toml:"picture_description"`
	Combined           string `toml:"combined"` // Picture description plus code or formula
}

type UploadConfig struct {
	MaxSizeMB         int      `toml:"max_size_mb"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

// RetentionConfig controls the scheduled sweep of expired job files
type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Standard 5-field cron expression
	MaxAge   string `toml:"max_age"`
}

type WebSocketConfig struct {
	PollInterval string `toml:"poll_interval"` // How often the status store is scanned for changes
}

type LoggingConfig struct {
	Level      string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output     []string `toml:"output"` // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
	Dir        string   `toml:"dir"`       // Log directory (default: <executable dir>/logs)
	JobLevel   string   `toml:"job_level"` // Minimum level captured into per-job logs
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:      8080,
			Host:      "localhost",
			RateLimit: 20,
			RateBurst: 40,
		},
		Web: WebConfig{
			Port:         8081,
			Host:         "localhost",
			Dir:          "./web",
			APIURL:       "http://localhost:8080",
			WaitAttempts: 30,
			WaitInterval: "1s",
		},
		Storage: StorageConfig{
			QueueFile:  "queue.json",
			StatusFile: "status.json",
		},
		Lock: LockConfig{
			Namespace: "psdocling",
			Timeout:   "5s",
		},
		Worker: WorkerConfig{
			PollInterval:    "2s",
			MonitorInterval: "1s",
			ExitWait:        "10s",
		},
		Engine: EngineConfig{
			Command: []string{"python3", "scripts/docling_convert.py"},
		},
		Timeouts: TimeoutsConfig{
			Base:               "10m",
			PictureClasses:     "30m",
			CodeOrFormula:      "1h",
			CodeAndFormula:     "2h",
			PictureDescription: "3h",
			Combined:           "6h",
		},
		Upload: UploadConfig{
			MaxSizeMB: 100,
			AllowedExtensions: []string{
				".pdf", ".docx", ".pptx", ".xlsx", ".html", ".htm", ".md",
				".csv", ".asciidoc", ".adoc", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp",
			},
		},
		Retention: RetentionConfig{
			Enabled:  false,
			Schedule: "0 * * * *",
			MaxAge:   "168h",
		},
		WebSocket: WebSocketConfig{
			PollInterval: "1s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
			JobLevel:   "info",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.ResolvePaths()

	return config, nil
}

// applyEnvOverrides applies PSDOCLING_* environment variables
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PSDOCLING_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PSDOCLING_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PSDOCLING_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("PSDOCLING_WEB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Web.Port = p
		}
	}
	if apiURL := os.Getenv("PSDOCLING_WEB_API_URL"); apiURL != "" {
		config.Web.APIURL = apiURL
	}

	if stateDir := os.Getenv("PSDOCLING_STATE_DIR"); stateDir != "" {
		config.Storage.StateDir = stateDir
	}
	if lockTimeout := os.Getenv("PSDOCLING_LOCK_TIMEOUT"); lockTimeout != "" {
		config.Lock.Timeout = lockTimeout
	}
	if pollInterval := os.Getenv("PSDOCLING_WORKER_POLL_INTERVAL"); pollInterval != "" {
		config.Worker.PollInterval = pollInterval
	}
	if command := os.Getenv("PSDOCLING_ENGINE_COMMAND"); command != "" {
		if fields := strings.Fields(command); len(fields) > 0 {
			config.Engine.Command = fields
		}
	}

	if level := os.Getenv("PSDOCLING_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PSDOCLING_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolvePaths fills empty storage and lock paths. The state directory defaults to
// a process-wide temp location so unrelated processes on the host share it.
func (c *Config) ResolvePaths() {
	if c.Storage.StateDir == "" {
		c.Storage.StateDir = filepath.Join(os.TempDir(), "psdocling")
	}
	if c.Storage.QueueFile == "" {
		c.Storage.QueueFile = "queue.json"
	}
	if c.Storage.StatusFile == "" {
		c.Storage.StatusFile = "status.json"
	}
	if !filepath.IsAbs(c.Storage.QueueFile) {
		c.Storage.QueueFile = filepath.Join(c.Storage.StateDir, c.Storage.QueueFile)
	}
	if !filepath.IsAbs(c.Storage.StatusFile) {
		c.Storage.StatusFile = filepath.Join(c.Storage.StateDir, c.Storage.StatusFile)
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = filepath.Join(c.Storage.StateDir, "uploads")
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = filepath.Join(c.Storage.StateDir, "output")
	}
	if c.Storage.JobLogsDir == "" {
		c.Storage.JobLogsDir = filepath.Join(c.Storage.StateDir, "job_logs")
	}
	if c.Lock.Dir == "" {
		c.Lock.Dir = c.Storage.StateDir
	}
}

// ParseDuration parses a duration string, returning fallback when the value is
// empty or invalid.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
