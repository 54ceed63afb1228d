// Package config provides configuration management for the device-manager
// application.
//
// Configuration is environment-first: every option is an environment
// variable with a default, so the container image can be launched with no
// mandatory settings. An optional YAML overlay file can adjust a subset of
// options and is hot-reloaded on change (see watcher.go).
//
// The recognized variables and defaults follow the service launch contract:
//
//	NUM_WORKERS          command worker count        (default 1)
//	PORT                 HTTP bind port              (default 9101)
//	HOST                 HTTP bind address           (default 0.0.0.0)
//	API_LOGGING_ENABLED  per-request logging toggle  (default true)
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/edgekit/device-manager/internal/logger"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig
	Commands CommandConfig
	Docker   DockerConfig
	Metrics  MetricsConfig
	Upstream UpstreamConfig
	Log      LogConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// Host is the bind address. The default binds all interfaces because
	// the service normally runs inside a container.
	Host string `env:"HOST" default:"0.0.0.0"`

	// Port is the TCP port the server binds.
	Port int `env:"PORT" default:"9101"`

	// APILoggingEnabled toggles the request logging middleware.
	APILoggingEnabled bool `env:"API_LOGGING_ENABLED" default:"true"`

	// RateLimitRPS caps sustained requests per second across all clients.
	// Zero disables rate limiting.
	RateLimitRPS float64 `env:"API_RATE_LIMIT_RPS" default:"0"`

	// RateLimitBurst is the burst allowance when rate limiting is enabled.
	RateLimitBurst int `env:"API_RATE_LIMIT_BURST" default:"20"`
}

// CommandConfig holds the command execution settings.
type CommandConfig struct {
	// NumWorkers is the number of workers executing management commands.
	NumWorkers int `env:"NUM_WORKERS" default:"1"`

	// QueueSize is the capacity of the pending command queue.
	QueueSize int `env:"COMMAND_QUEUE_SIZE" default:"64"`

	// HistoryLimit bounds the in-memory record of finished commands.
	HistoryLimit int `env:"COMMAND_HISTORY_LIMIT" default:"256"`
}

// DockerConfig holds settings for the Docker integration.
type DockerConfig struct {
	// ManagedLabel is the container label identifying inference-server
	// containers this device manager supervises.
	ManagedLabel string `env:"MANAGED_CONTAINER_LABEL" default:"com.edgekit.inference-server"`

	// StopTimeout is how long a container gets to exit after SIGTERM
	// before Docker escalates to SIGKILL.
	StopTimeout time.Duration `env:"CONTAINER_STOP_TIMEOUT" default:"30s"`
}

// MetricsConfig holds the metrics sampling settings.
type MetricsConfig struct {
	// Enabled toggles periodic device metrics sampling.
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Interval is the sampling and reporting period.
	Interval time.Duration `env:"METRICS_INTERVAL" default:"60s"`
}

// UpstreamConfig holds settings for the optional fleet API integration.
//
// When BaseURL is empty, metrics reporting and remote command polling are
// disabled and the device manager operates standalone.
type UpstreamConfig struct {
	// BaseURL is the fleet API endpoint, e.g. "https://fleet.example.com".
	BaseURL string `env:"FLEET_API_BASE_URL"`

	// APIKey authenticates this device against the fleet API.
	APIKey string `env:"FLEET_API_KEY"`

	// Timeout bounds individual fleet API requests.
	Timeout time.Duration `env:"FLEET_API_TIMEOUT" default:"10s"`

	// PollInterval is how often the device polls for remote commands.
	PollInterval time.Duration `env:"COMMAND_POLL_INTERVAL" default:"5s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is "text" or "json".
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Load builds the configuration from the process environment.
//
// A .env file in the working directory is loaded first if present, which
// is convenient for local development; real deployments set variables on
// the container.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants. It is called by Load and again
// after overlay application, so an overlay cannot put the process into an
// invalid state.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("HOST must not be empty")
	}
	if c.Commands.NumWorkers < 1 {
		return fmt.Errorf("NUM_WORKERS must be at least 1, got %d", c.Commands.NumWorkers)
	}
	if c.Commands.QueueSize < 1 {
		return fmt.Errorf("COMMAND_QUEUE_SIZE must be at least 1, got %d", c.Commands.QueueSize)
	}
	if c.Commands.HistoryLimit < 1 {
		return fmt.Errorf("COMMAND_HISTORY_LIMIT must be at least 1, got %d", c.Commands.HistoryLimit)
	}
	if c.Docker.ManagedLabel == "" {
		return fmt.Errorf("MANAGED_CONTAINER_LABEL must not be empty")
	}
	if c.Docker.StopTimeout <= 0 {
		return fmt.Errorf("CONTAINER_STOP_TIMEOUT must be positive, got %s", c.Docker.StopTimeout)
	}
	if c.Metrics.Interval <= 0 {
		return fmt.Errorf("METRICS_INTERVAL must be positive, got %s", c.Metrics.Interval)
	}
	if c.Upstream.BaseURL != "" && c.Upstream.PollInterval <= 0 {
		return fmt.Errorf("COMMAND_POLL_INTERVAL must be positive, got %s", c.Upstream.PollInterval)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	return nil
}

// Addr returns the host:port string the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
