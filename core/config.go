package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for a gomind-mas system.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// A config file loaded with WithConfigFile is applied at the point the
// option runs, so later options still override it.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("plant-a"),
//	    WithMaxCapacity(50),
//	    WithRetry(4, 500*time.Millisecond),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name string `json:"name" yaml:"name" env:"MAS_NAME"`
	ID   string `json:"id" yaml:"id" env:"MAS_ID"`

	// Event bus configuration
	Bus BusConfig `json:"bus" yaml:"bus"`

	// Resilience configuration
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`

	// Scheduling configuration
	Scheduling SchedulingConfig `json:"scheduling" yaml:"scheduling"`

	// Simulated inter-agent messaging
	Messaging MessagingConfig `json:"messaging" yaml:"messaging"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry configuration (optional)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Development configuration
	Development DevelopmentConfig `json:"development" yaml:"development"`
}

// Delivery policies understood by the event bus.
const (
	DeliveryFailFast = "fail_fast"
	DeliveryIsolate  = "isolate"
)

// BusConfig controls how a subject reacts to a failing subscriber.
// fail_fast stops at the first failing handler; isolate records the
// failure and keeps delivering.
type BusConfig struct {
	DeliveryPolicy string `json:"delivery_policy" yaml:"delivery_policy" env:"MAS_BUS_DELIVERY_POLICY" default:"fail_fast"`
}

// ResilienceConfig contains fault tolerance settings for inter-agent messaging.
type ResilienceConfig struct {
	Retry RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig defines retry pattern settings with exponential backoff.
// Formula: delay(attempt) = BaseDelay * 2^(attempt-1), capped at MaxDelay when MaxDelay > 0.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" env:"MAS_RETRY_MAX_ATTEMPTS" default:"4"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay" env:"MAS_RETRY_BASE_DELAY" default:"500ms"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay" env:"MAS_RETRY_MAX_DELAY" default:"0"`
}

// SchedulingConfig configures the capacity guard and the scheduler agent.
type SchedulingConfig struct {
	MaxCapacity int    `json:"max_capacity" yaml:"max_capacity" env:"MAS_MAX_CAPACITY" default:"50"`
	Strategy    string `json:"strategy" yaml:"strategy" env:"MAS_SCHEDULER_STRATEGY" default:"urgent_first"`
	JobsFile    string `json:"jobs_file" yaml:"jobs_file" env:"MAS_JOBS_FILE"`
	PlanCron    string `json:"plan_cron" yaml:"plan_cron" env:"MAS_PLAN_CRON"`
}

// MessagingConfig configures the simulated agent-to-agent link.
// FailureRate is the probability in [0,1] that a single send times out.
// RateLimit caps send attempts per second; zero leaves the link unlimited.
type MessagingConfig struct {
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate" env:"MAS_MESSAGING_FAILURE_RATE" default:"0"`
	Seed        int64   `json:"seed" yaml:"seed" env:"MAS_MESSAGING_SEED"`
	RateLimit   float64 `json:"rate_limit" yaml:"rate_limit" env:"MAS_MESSAGING_RATE_LIMIT" default:"0"`
	RateBurst   int     `json:"rate_burst" yaml:"rate_burst" env:"MAS_MESSAGING_RATE_BURST" default:"1"`
}

// LoggingConfig contains logging configuration.
// Supports structured (json) and human-readable (text) formats.
type LoggingConfig struct {
	Level              string  `json:"level" yaml:"level" env:"MAS_LOG_LEVEL" default:"info"`
	Format             string  `json:"format" yaml:"format" env:"MAS_LOG_FORMAT" default:"json"`
	Output             string  `json:"output" yaml:"output" env:"MAS_LOG_OUTPUT" default:"stdout"`
	ErrorRatePerSecond float64 `json:"error_rate_per_second" yaml:"error_rate_per_second" env:"MAS_LOG_ERROR_RATE" default:"0"`
}

// Telemetry exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TelemetryConfig contains observability configuration for metrics and tracing.
// Telemetry is only initialized when Enabled=true.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled" env:"MAS_TELEMETRY_ENABLED" default:"false"`
	Exporter     string  `json:"exporter" yaml:"exporter" env:"MAS_TELEMETRY_EXPORTER" default:"none"`
	Endpoint     string  `json:"endpoint" yaml:"endpoint" env:"MAS_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `json:"service_name" yaml:"service_name" env:"MAS_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" env:"MAS_TELEMETRY_SAMPLING_RATE" default:"1.0"`
}

// DevelopmentConfig contains settings for local development and testing.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"MAS_DEV_MODE" default:"false"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging" env:"MAS_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs" env:"MAS_PRETTY_LOGS" default:"false"`
}

// Option is a functional option for configuring the system.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// Retry and capacity defaults match the reference plant setup: four
// attempts starting at 500ms, and a 50 hour weekly ceiling.
func DefaultConfig() *Config {
	return &Config{
		Name: "mas",
		Bus: BusConfig{
			DeliveryPolicy: DeliveryFailFast,
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxAttempts: 4,
				BaseDelay:   500 * time.Millisecond,
			},
		},
		Scheduling: SchedulingConfig{
			MaxCapacity: 50,
			Strategy:    "urgent_first",
		},
		Messaging: MessagingConfig{
			FailureRate: 0,
			RateBurst:   1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     ExporterNone,
			SamplingRate: 1.0,
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden by functional options.
// Malformed numeric or duration values are reported as ErrInvalidConfiguration.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("MAS_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("MAS_ID"); v != "" {
		c.ID = v
	}

	// Bus settings
	if v := os.Getenv("MAS_BUS_DELIVERY_POLICY"); v != "" {
		c.Bus.DeliveryPolicy = strings.ToLower(v)
	}

	// Retry settings
	if v := os.Getenv("MAS_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAS_RETRY_MAX_ATTEMPTS", v, err)
		}
		c.Resilience.Retry.MaxAttempts = n
	}
	if v := os.Getenv("MAS_RETRY_BASE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("MAS_RETRY_BASE_DELAY", v, err)
		}
		c.Resilience.Retry.BaseDelay = d
	}
	if v := os.Getenv("MAS_RETRY_MAX_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("MAS_RETRY_MAX_DELAY", v, err)
		}
		c.Resilience.Retry.MaxDelay = d
	}

	// Scheduling settings
	if v := os.Getenv("MAS_MAX_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAS_MAX_CAPACITY", v, err)
		}
		c.Scheduling.MaxCapacity = n
	}
	if v := os.Getenv("MAS_SCHEDULER_STRATEGY"); v != "" {
		c.Scheduling.Strategy = strings.ToLower(v)
	}
	if v := os.Getenv("MAS_JOBS_FILE"); v != "" {
		c.Scheduling.JobsFile = v
	}
	if v := os.Getenv("MAS_PLAN_CRON"); v != "" {
		c.Scheduling.PlanCron = v
	}

	// Messaging settings
	if v := os.Getenv("MAS_MESSAGING_FAILURE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("MAS_MESSAGING_FAILURE_RATE", v, err)
		}
		c.Messaging.FailureRate = f
	}
	if v := os.Getenv("MAS_MESSAGING_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError("MAS_MESSAGING_SEED", v, err)
		}
		c.Messaging.Seed = n
	}
	if v := os.Getenv("MAS_MESSAGING_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("MAS_MESSAGING_RATE_LIMIT", v, err)
		}
		c.Messaging.RateLimit = f
	}
	if v := os.Getenv("MAS_MESSAGING_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAS_MESSAGING_RATE_BURST", v, err)
		}
		c.Messaging.RateBurst = n
	}

	// Logging settings
	if v := os.Getenv("MAS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MAS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("MAS_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("MAS_LOG_ERROR_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("MAS_LOG_ERROR_RATE", v, err)
		}
		c.Logging.ErrorRatePerSecond = f
	}

	// Telemetry settings
	if v := os.Getenv("MAS_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("MAS_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("MAS_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if endpoint is provided
		c.Telemetry.Exporter = ExporterOTLP
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if OTEL endpoint is present
		c.Telemetry.Exporter = ExporterOTLP
	}
	if v := os.Getenv("MAS_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("MAS_TELEMETRY_SAMPLING_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("MAS_TELEMETRY_SAMPLING_RATE", v, err)
		}
		c.Telemetry.SamplingRate = f
	}

	// Development settings
	if v := os.Getenv("MAS_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("MAS_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}
	if v := os.Getenv("MAS_PRETTY_LOGS"); v != "" {
		c.Development.PrettyLogs = parseBool(v)
	}

	return nil
}

func envError(name, value string, err error) error {
	return &FrameworkError{
		Op:      "Config.LoadFromEnv",
		Kind:    "config",
		Message: fmt.Sprintf("invalid %s=%q (%v)", name, value, err),
		Err:     ErrInvalidConfiguration,
	}
}

// LoadFromFile loads configuration from a JSON or YAML file.
// The file should contain an object matching the Config struct.
// Durations in YAML may be written as Go duration strings ("500ms").
//
// Example YAML:
//
//	name: plant-a
//	scheduling:
//	  max_capacity: 50
//	resilience:
//	  retry:
//	    max_attempts: 4
//	    base_delay: 500ms
func (c *Config) LoadFromFile(path string) error {
	// Clean the path to prevent directory traversal attacks
	cleanPath := filepath.Clean(path)

	// Verify the file has a safe extension
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- path is cleaned and extension checked
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	// Parse based on extension
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig() but can also be called
// manually after modifying configuration.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: msg,
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Name == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "system name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch c.Bus.DeliveryPolicy {
	case DeliveryFailFast, DeliveryIsolate:
	default:
		return invalid(fmt.Sprintf("unknown delivery policy %q", c.Bus.DeliveryPolicy))
	}

	if c.Resilience.Retry.MaxAttempts < 1 {
		return invalid(fmt.Sprintf("retry max attempts must be >= 1, got %d", c.Resilience.Retry.MaxAttempts))
	}
	if c.Resilience.Retry.BaseDelay < 0 {
		return invalid(fmt.Sprintf("retry base delay must be >= 0, got %s", c.Resilience.Retry.BaseDelay))
	}
	if c.Resilience.Retry.MaxDelay < 0 {
		return invalid(fmt.Sprintf("retry max delay must be >= 0, got %s", c.Resilience.Retry.MaxDelay))
	}

	if c.Scheduling.MaxCapacity < 0 {
		return invalid(fmt.Sprintf("max capacity must be >= 0, got %d", c.Scheduling.MaxCapacity))
	}
	if c.Scheduling.Strategy == "" {
		return invalid("scheduler strategy is required")
	}

	if c.Messaging.FailureRate < 0 || c.Messaging.FailureRate > 1 {
		return invalid(fmt.Sprintf("messaging failure rate must be within [0,1], got %g", c.Messaging.FailureRate))
	}
	if c.Messaging.RateLimit < 0 {
		return invalid(fmt.Sprintf("messaging rate limit must be >= 0, got %g", c.Messaging.RateLimit))
	}
	if c.Messaging.RateLimit > 0 && c.Messaging.RateBurst < 1 {
		return invalid(fmt.Sprintf("messaging rate burst must be >= 1, got %d", c.Messaging.RateBurst))
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case ExporterNone, ExporterStdout:
		case ExporterOTLP:
			if c.Telemetry.Endpoint == "" {
				return &FrameworkError{
					Op:      "Config.Validate",
					Kind:    "config",
					Message: "telemetry endpoint is required for the otlp exporter",
					Err:     ErrMissingConfiguration,
				}
			}
		default:
			return invalid(fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter))
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return invalid(fmt.Sprintf("sampling rate must be within [0,1], got %g", c.Telemetry.SamplingRate))
		}
	}

	return nil
}

// parseBool parses a boolean from string, accepting various formats
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1", "enabled":
		return true
	}
	return false
}

// WithName sets the system name used for logs and telemetry
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithRetry configures the backoff executor
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.BaseDelay = baseDelay
		return nil
	}
}

// WithMaxRetryDelay caps individual backoff waits
func WithMaxRetryDelay(maxDelay time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxDelay = maxDelay
		return nil
	}
}

// WithMaxCapacity sets the capacity ceiling in hours
func WithMaxCapacity(hours int) Option {
	return func(c *Config) error {
		c.Scheduling.MaxCapacity = hours
		return nil
	}
}

// WithDeliveryPolicy selects fail_fast or isolate delivery
func WithDeliveryPolicy(policy string) Option {
	return func(c *Config) error {
		c.Bus.DeliveryPolicy = strings.ToLower(policy)
		return nil
	}
}

// WithStrategy selects the scheduler's reoptimization strategy by name
func WithStrategy(name string) Option {
	return func(c *Config) error {
		c.Scheduling.Strategy = strings.ToLower(name)
		return nil
	}
}

// WithJobsFile points the forward scheduler at a YAML/JSON job list
func WithJobsFile(path string) Option {
	return func(c *Config) error {
		c.Scheduling.JobsFile = path
		return nil
	}
}

// WithPlanCron sets the cron expression used by the schedule planner
func WithPlanCron(spec string) Option {
	return func(c *Config) error {
		c.Scheduling.PlanCron = spec
		return nil
	}
}

// WithFailureRate sets the simulated link's failure probability and seed
func WithFailureRate(rate float64, seed int64) Option {
	return func(c *Config) error {
		c.Messaging.FailureRate = rate
		c.Messaging.Seed = seed
		return nil
	}
}

// WithMessagingRateLimit caps send attempts on the simulated link
func WithMessagingRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) error {
		c.Messaging.RateLimit = perSecond
		c.Messaging.RateBurst = burst
		return nil
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format (json or text)
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithTelemetry enables telemetry with the given exporter and endpoint
func WithTelemetry(enabled bool, exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Exporter = strings.ToLower(exporter)
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithConfigFile loads configuration from a file
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithDevelopmentMode enables development mode with debug, human-readable logs
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
		return nil
	}
}

// NewConfig creates a new configuration with the given options.
// Configuration is applied in the following order:
//  1. Default values
//  2. Environment variables
//  3. Functional options
//
// The final configuration is validated before being returned.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment configuration: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply configuration option: %w", err)
		}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.Name
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
