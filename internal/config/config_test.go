package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asyncops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.GracePeriod)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.DefaultTimeout)
	assert.Equal(t, time.Second, cfg.Orchestrator.DefaultPollInterval)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 1000, cfg.History.Capacity)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9191
  read_timeout: 5s
orchestrator:
  grace_period: 250ms
  default_poll_interval: 2s
logging:
  level: DEBUG
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.GracePeriod)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.DefaultPollInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9191
orchestrator:
  grace_period: 1s
`)
	t.Setenv("ASYNCOPS_SERVER_PORT", "7070")
	t.Setenv("ASYNCOPS_ORCHESTRATOR_MAX_BATCH_ITEMS", "12")
	t.Setenv("ASYNCOPS_SECURITY_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Orchestrator.GracePeriod, "file value kept when env is unset")
	assert.Equal(t, 12, cfg.Orchestrator.MaxBatchItems)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, "server:\n  prot: 80\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "cors without origins",
			mutate:  func(c *Config) { c.Security.AllowedOrigins = nil },
			wantErr: "allowed origin",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "invalid log level",
		},
		{
			name: "file output without path",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.FilePath = ""
			},
			wantErr: "file_path",
		},
		{
			name:    "poll interval below minimum",
			mutate:  func(c *Config) { c.Orchestrator.DefaultPollInterval = time.Millisecond },
			wantErr: "below min_poll_interval",
		},
		{
			name:    "ping slower than pong wait",
			mutate:  func(c *Config) { c.WebSocket.PingPeriod = 2 * c.WebSocket.PongWait },
			wantErr: "ping_period",
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Telemetry.TraceExporter = "zipkin" },
			wantErr: "unsupported trace exporter",
		},
		{
			name:    "sample ratio",
			mutate:  func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
			wantErr: "sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.History.Capacity = -1

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
	assert.Contains(t, err.Error(), "history capacity")
}
