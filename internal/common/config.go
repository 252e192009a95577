package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Schedule    ScheduleConfig  `toml:"schedule"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig  `toml:"badger"`
	Dataset DatasetConfig `toml:"dataset"`
}

// BadgerConfig represents BadgerDB-specific configuration for the result store
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// DatasetConfig controls where accumulated per-source CSV datasets live
type DatasetConfig struct {
	Dir string `toml:"dir"` // Directory for per-source history CSV files
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// BrowserConfig contains chromedp browser pool configuration shared by all fetchers
type BrowserConfig struct {
	Headless       bool   `toml:"headless"`        // Run Chrome headless
	PoolSize       int    `toml:"pool_size"`       // Number of browser instances
	UserAgent      string `toml:"user_agent"`      // User agent string
	RequestTimeout string `toml:"request_timeout"` // Per-navigation timeout, e.g. "30s"
	PageDelay      string `toml:"page_delay"`      // Minimum delay between page loads, e.g. "3s"
}

// ScraperConfig contains per-source scraping limits
type ScraperConfig struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"` // Cap on jobs running at once (0 = unlimited)
	PreviewSize       int `toml:"preview_size"`        // Records kept as job preview sample
}

// ScheduleConfig enables recurring scrape jobs driven by cron expressions
type ScheduleConfig struct {
	Enabled bool              `toml:"enabled"`
	Entries []ScheduledScrape `toml:"entries"`
}

// ScheduledScrape binds a cron expression to a source tag
type ScheduledScrape struct {
	Source   string `toml:"source"`   // "classic_valuer" or "classic_com"
	Schedule string `toml:"schedule"` // Standard 5-field cron expression
}

// WebSocketConfig contains configuration for the live job status stream
type WebSocketConfig struct {
	StatusInterval string `toml:"status_interval"` // Minimum interval between broadcast snapshots per job
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in subhasta.toml; technical
// parameters are hardcoded here for stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/results",
			},
			Dataset: DatasetConfig{
				Dir: "./data/datasets",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			Headless:       true,
			PoolSize:       2,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
			PageDelay:      "3s",
		},
		Scraper: ScraperConfig{
			MaxConcurrentJobs: 4,
			PreviewSize:       10,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
		},
		WebSocket: WebSocketConfig{
			StatusInterval: "1s",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SUBHASTA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SUBHASTA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SUBHASTA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("SUBHASTA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if datasetDir := os.Getenv("SUBHASTA_DATASET_DIR"); datasetDir != "" {
		config.Storage.Dataset.Dir = datasetDir
	}

	if level := os.Getenv("SUBHASTA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SUBHASTA_LOG_OUTPUT"); output != "" {
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

	if headless := os.Getenv("SUBHASTA_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if poolSize := os.Getenv("SUBHASTA_BROWSER_POOL_SIZE"); poolSize != "" {
		if ps, err := strconv.Atoi(poolSize); err == nil {
			config.Browser.PoolSize = ps
		}
	}
	if userAgent := os.Getenv("SUBHASTA_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("SUBHASTA_BROWSER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.Browser.RequestTimeout = requestTimeout
		}
	}
	if pageDelay := os.Getenv("SUBHASTA_BROWSER_PAGE_DELAY"); pageDelay != "" {
		if _, err := time.ParseDuration(pageDelay); err == nil {
			config.Browser.PageDelay = pageDelay
		}
	}

	if maxJobs := os.Getenv("SUBHASTA_MAX_CONCURRENT_JOBS"); maxJobs != "" {
		if mj, err := strconv.Atoi(maxJobs); err == nil {
			config.Scraper.MaxConcurrentJobs = mj
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateSchedule validates a cron schedule expression and enforces a
// minimum 5-minute interval so scheduled scrapes cannot hammer a source.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
