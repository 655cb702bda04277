package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic actuator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Setup     SetupConfig     `yaml:"setup"`
	Devices   DevicesConfig   `yaml:"devices"`
	Events    EventsConfig    `yaml:"events"`
	Actuation ActuationConfig `yaml:"actuation"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SetupConfig describes the setup feed queried once at startup.
type SetupConfig struct {
	URL        string `yaml:"url"`
	Timeout    int    `yaml:"timeout"`     // seconds
	RetryCount int    `yaml:"retry_count"` // extra attempts on transport failure
}

// DevicesConfig describes the device control surface (one HTTP Thing per device).
type DevicesConfig struct {
	BaseURL            string `yaml:"base_url"`
	RequestTimeout     int    `yaml:"request_timeout"` // seconds
	ResolveConcurrency int    `yaml:"resolve_concurrency"`
}

// EventsConfig describes the event backend streams.
type EventsConfig struct {
	// BaseURL defaults to devices.base_url when empty.
	BaseURL string `yaml:"base_url"`

	// Endpoints selects which kinds are subscribed per room: "relevant" or "all".
	Endpoints string `yaml:"endpoints"`

	Reconnect EventsReconnectConfig `yaml:"reconnect"`
}

// EventsReconnectConfig controls the per-stream reconnect backoff.
type EventsReconnectConfig struct {
	InitialDelay int     `yaml:"initial_delay"` // seconds
	MaxDelay     int     `yaml:"max_delay"`     // seconds
	Jitter       float64 `yaml:"jitter"`        // 0..1 fraction of the delay
	LogEvery     int     `yaml:"log_every"`     // warn once per N consecutive failures
}

// ActuationConfig bounds device actuation.
type ActuationConfig struct {
	Timeout int `yaml:"timeout"` // seconds per device
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// Ingress subscribes to graylogic/actuator/events/+/+ and feeds those
	// messages to the dispatcher alongside the HTTP streams.
	Ingress bool `yaml:"ingress"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains the status HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// Endpoint subscription policies.
const (
	EndpointsRelevant = "relevant"
	EndpointsAll      = "all"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_ACTUATOR_SECTION_KEY
// For example: GRAYLOGIC_ACTUATOR_SETUP_URL, GRAYLOGIC_ACTUATOR_DEVICES_BASE_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Events.BaseURL == "" {
		cfg.Events.BaseURL = cfg.Devices.BaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Setup: SetupConfig{
			Timeout:    10,
			RetryCount: 3,
		},
		Devices: DevicesConfig{
			RequestTimeout:     5,
			ResolveConcurrency: 8,
		},
		Events: EventsConfig{
			Endpoints: EndpointsRelevant,
			Reconnect: EventsReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
				Jitter:       0.2,
				LogEvery:     10,
			},
		},
		Actuation: ActuationConfig{
			Timeout: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-actuator",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_ACTUATOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Setup feed and device surfaces
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_SETUP_URL"); v != "" {
		cfg.Setup.URL = v
	}
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_DEVICES_BASE_URL"); v != "" {
		cfg.Devices.BaseURL = v
	}
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_EVENTS_BASE_URL"); v != "" {
		cfg.Events.BaseURL = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_ACTUATOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if err := validateHTTPURL(c.Setup.URL); err != "" {
		errs = append(errs, "setup.url "+err)
	}
	if err := validateHTTPURL(c.Devices.BaseURL); err != "" {
		errs = append(errs, "devices.base_url "+err)
	}
	if c.Events.BaseURL != "" {
		if err := validateHTTPURL(c.Events.BaseURL); err != "" {
			errs = append(errs, "events.base_url "+err)
		}
	}

	switch c.Events.Endpoints {
	case EndpointsRelevant, EndpointsAll:
	default:
		errs = append(errs, `events.endpoints must be "relevant" or "all"`)
	}

	rc := c.Events.Reconnect
	if rc.InitialDelay < 1 {
		errs = append(errs, "events.reconnect.initial_delay must be at least 1 second")
	}
	if rc.MaxDelay < rc.InitialDelay {
		errs = append(errs, "events.reconnect.max_delay must not be less than initial_delay")
	}
	if rc.Jitter < 0 || rc.Jitter > 1 {
		errs = append(errs, "events.reconnect.jitter must be between 0 and 1")
	}

	if c.Devices.ResolveConcurrency < 1 {
		errs = append(errs, "devices.resolve_concurrency must be at least 1")
	}
	if c.Actuation.Timeout < 1 {
		errs = append(errs, "actuation.timeout must be at least 1 second")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateHTTPURL returns a short description of what is wrong with raw, or "".
func validateHTTPURL(raw string) string {
	if raw == "" {
		return "is required"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "must be an absolute URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "must use http or https"
	}
	return ""
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetSetupTimeout returns the setup feed request timeout.
func (c *Config) GetSetupTimeout() time.Duration {
	return time.Duration(c.Setup.Timeout) * time.Second
}

// GetDeviceTimeout returns the per-request device control timeout.
func (c *Config) GetDeviceTimeout() time.Duration {
	return time.Duration(c.Devices.RequestTimeout) * time.Second
}

// GetActuationTimeout returns the upper bound for actuating one device.
func (c *Config) GetActuationTimeout() time.Duration {
	return time.Duration(c.Actuation.Timeout) * time.Second
}

// GetReconnectInitialDelay returns the first stream reconnect delay.
func (c *Config) GetReconnectInitialDelay() time.Duration {
	return time.Duration(c.Events.Reconnect.InitialDelay) * time.Second
}

// GetReconnectMaxDelay returns the reconnect delay ceiling.
func (c *Config) GetReconnectMaxDelay() time.Duration {
	return time.Duration(c.Events.Reconnect.MaxDelay) * time.Second
}
