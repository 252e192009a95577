package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileDefaults(t *testing.T) {
	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "./data/results", config.Storage.Badger.Path)
	assert.Equal(t, "./data/datasets", config.Storage.Dataset.Dir)
	assert.Equal(t, "info", config.Logging.Level)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "30s", config.Browser.RequestTimeout)
	assert.Equal(t, "3s", config.Browser.PageDelay)
	assert.Equal(t, 4, config.Scraper.MaxConcurrentJobs)
	assert.Equal(t, 10, config.Scraper.PreviewSize)
	assert.False(t, config.Schedule.Enabled)
	assert.Equal(t, "1s", config.WebSocket.StatusInterval)
}

func TestLoadFromFile(t *testing.T) {
	content := `
environment = "production"

[server]
port = 9090
host = "0.0.0.0"

[storage.badger]
path = "/tmp/results"
reset_on_startup = true

[browser]
headless = false
pool_size = 4
request_timeout = "90s"
page_delay = "500ms"

[scraper]
max_concurrent_jobs = 2
preview_size = 5

[schedule]
enabled = true

[[schedule.entries]]
source = "classic_valuer"
schedule = "0 6 * * *"

[websocket]
status_interval = "2s"
`
	path := filepath.Join(t.TempDir(), "subhasta.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.True(t, config.IsProduction())
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "/tmp/results", config.Storage.Badger.Path)
	assert.True(t, config.Storage.Badger.ResetOnStartup)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, 4, config.Browser.PoolSize)
	assert.Equal(t, "90s", config.Browser.RequestTimeout)
	assert.Equal(t, "500ms", config.Browser.PageDelay)
	assert.Equal(t, 2, config.Scraper.MaxConcurrentJobs)
	assert.Equal(t, 5, config.Scraper.PreviewSize)

	require.True(t, config.Schedule.Enabled)
	require.Len(t, config.Schedule.Entries, 1)
	assert.Equal(t, "classic_valuer", config.Schedule.Entries[0].Source)
	assert.Equal(t, "0 6 * * *", config.Schedule.Entries[0].Schedule)

	assert.Equal(t, "2s", config.WebSocket.StatusInterval)

	// values the file does not set keep their defaults
	assert.Equal(t, "./data/datasets", config.Storage.Dataset.Dir)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUBHASTA_SERVER_PORT", "7070")
	t.Setenv("SUBHASTA_LOG_LEVEL", "debug")
	t.Setenv("SUBHASTA_LOG_OUTPUT", "stdout, file")
	t.Setenv("SUBHASTA_BROWSER_HEADLESS", "false")
	t.Setenv("SUBHASTA_BROWSER_REQUEST_TIMEOUT", "45s")
	t.Setenv("SUBHASTA_BROWSER_PAGE_DELAY", "not-a-duration")

	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, "45s", config.Browser.RequestTimeout)
	// unparseable durations are ignored, keeping the default
	assert.Equal(t, "3s", config.Browser.PageDelay)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9999, "example.com")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "example.com", config.Server.Host)

	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "example.com", config.Server.Host)
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"daily at six", "0 6 * * *", false},
		{"every fifteen minutes", "*/15 * * * *", false},
		{"every five minutes", "*/5 * * * *", false},
		{"every minute", "* * * * *", true},
		{"every two minutes", "*/2 * * * *", true},
		{"garbage", "whenever", true},
		{"too few fields", "0 6 *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
