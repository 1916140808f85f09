package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment variable, e.g. ASYNCOPS_SERVER_PORT.
const EnvPrefix = "ASYNCOPS"

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Security     SecurityConfig     `yaml:"security" envconfig:"SECURITY"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" envconfig:"ORCHESTRATOR"`
	WebSocket    WebSocketConfig    `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" envconfig:"TELEMETRY"`
	History      HistoryConfig      `yaml:"history" envconfig:"HISTORY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// OrchestratorConfig tunes the operation manager and the services built on it
type OrchestratorConfig struct {
	// GracePeriod keeps terminal operations readable before purge.
	GracePeriod         time.Duration `yaml:"grace_period" envconfig:"GRACE_PERIOD"`
	DefaultTimeout      time.Duration `yaml:"default_timeout" envconfig:"DEFAULT_TIMEOUT"`
	DefaultPollInterval time.Duration `yaml:"default_poll_interval" envconfig:"DEFAULT_POLL_INTERVAL"`
	MinPollInterval     time.Duration `yaml:"min_poll_interval" envconfig:"MIN_POLL_INTERVAL"`
	// ProbeTimeout bounds one HTTP status request made by a remote probe.
	ProbeTimeout     time.Duration `yaml:"probe_timeout" envconfig:"PROBE_TIMEOUT"`
	BatchItemTimeout time.Duration `yaml:"batch_item_timeout" envconfig:"BATCH_ITEM_TIMEOUT"`
	MaxBatchItems    int           `yaml:"max_batch_items" envconfig:"MAX_BATCH_ITEMS"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
	WriteWait       time.Duration `yaml:"write_wait" envconfig:"WRITE_WAIT"`
	MaxMessageSize  int64         `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`
	SendBuffer      int           `yaml:"send_buffer" envconfig:"SEND_BUFFER"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// HistoryConfig sizes the in-memory record of finished operations
type HistoryConfig struct {
	Capacity int `yaml:"capacity" envconfig:"CAPACITY"`
}

// DefaultConfigLocations are searched when Load is given no path.
var DefaultConfigLocations = []string{
	"asyncops.yaml",
	"configs/asyncops.yaml",
	"/etc/asyncops/asyncops.yaml",
}

// Load builds the configuration from defaults, then the YAML file at path
// (or the first of DefaultConfigLocations when path is empty), then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	// no default tags: envconfig leaves unset variables untouched
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func findConfigFile() string {
	for _, location := range DefaultConfigLocations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// validate checks the configuration and normalizes enumerations
func (c *Config) validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server read and write timeouts must be positive"))
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("at least one allowed origin must be specified when CORS is enabled"))
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level: %q", c.Logging.Level))
	}
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	switch c.Logging.Output {
	case "stdout":
	case "file", "both":
		if c.Logging.FilePath == "" {
			errs = append(errs, errors.New("logging file_path is required for file output"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid log output: %q", c.Logging.Output))
	}

	o := c.Orchestrator
	if o.DefaultTimeout < 0 {
		errs = append(errs, errors.New("orchestrator default_timeout must not be negative"))
	}
	if o.MinPollInterval <= 0 {
		errs = append(errs, errors.New("orchestrator min_poll_interval must be positive"))
	}
	if o.DefaultPollInterval < o.MinPollInterval {
		errs = append(errs, fmt.Errorf("orchestrator default_poll_interval %s is below min_poll_interval %s",
			o.DefaultPollInterval, o.MinPollInterval))
	}
	if o.ProbeTimeout <= 0 || o.BatchItemTimeout <= 0 {
		errs = append(errs, errors.New("orchestrator probe and batch item timeouts must be positive"))
	}
	if o.MaxBatchItems <= 0 {
		errs = append(errs, errors.New("orchestrator max_batch_items must be positive"))
	}

	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, errors.New("websocket ping_period must be shorter than pong_wait"))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, errors.New("websocket send_buffer must be positive"))
	}

	switch c.Telemetry.TraceExporter {
	case "stdout", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported trace exporter: %q", c.Telemetry.TraceExporter))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry sample_ratio must be within [0,1], got %v", c.Telemetry.SampleRatio))
	}

	if c.History.Capacity < 0 {
		errs = append(errs, errors.New("history capacity must not be negative"))
	}

	return errors.Join(errs...)
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/asyncops.log",
		},
		Orchestrator: OrchestratorConfig{
			GracePeriod:         5 * time.Second,
			DefaultTimeout:      5 * time.Minute,
			DefaultPollInterval: time.Second,
			MinPollInterval:     100 * time.Millisecond,
			ProbeTimeout:        10 * time.Second,
			BatchItemTimeout:    30 * time.Second,
			MaxBatchItems:       500,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			MaxMessageSize:  512,
			SendBuffer:      256,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "asyncops",
			Environment:   "development",
			EnableTracing: false,
			EnableMetrics: true,
			TraceExporter: "stdout",
			SampleRatio:   1.0,
		},
		History: HistoryConfig{
			Capacity: 1000,
		},
	}
}
