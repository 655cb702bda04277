package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
setup:
  url: "http://setup.local:8080/api/setup"
devices:
  base_url: "http://things.local:8080"
  resolve_concurrency: 4
events:
  reconnect:
    initial_delay: 2
    max_delay: 30
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Setup.URL != "http://setup.local:8080/api/setup" {
		t.Errorf("Setup.URL = %q", cfg.Setup.URL)
	}
	if cfg.Devices.ResolveConcurrency != 4 {
		t.Errorf("Devices.ResolveConcurrency = %d, want 4", cfg.Devices.ResolveConcurrency)
	}
	if cfg.Events.BaseURL != "http://things.local:8080" {
		t.Errorf("Events.BaseURL = %q, want devices.base_url fallback", cfg.Events.BaseURL)
	}
	if cfg.Events.Endpoints != EndpointsRelevant {
		t.Errorf("Events.Endpoints = %q, want %q", cfg.Events.Endpoints, EndpointsRelevant)
	}
	if got := cfg.GetReconnectInitialDelay(); got != 2*time.Second {
		t.Errorf("GetReconnectInitialDelay() = %v, want 2s", got)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

func TestLoad_ExplicitEventsBaseURL(t *testing.T) {
	content := `
setup:
  url: "http://setup.local/api"
devices:
  base_url: "http://things.local"
events:
  base_url: "http://events.local"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Events.BaseURL != "http://events.local" {
		t.Errorf("Events.BaseURL = %q, want %q", cfg.Events.BaseURL, "http://events.local")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
devices:
  base_url: "http://things.local"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing setup.url, got nil")
	}
	if !strings.Contains(err.Error(), "setup.url") {
		t.Errorf("error = %v, want mention of setup.url", err)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Setup.URL = "http://setup.local/api"
	cfg.Devices.BaseURL = "http://things.local"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing setup url", mutate: func(c *Config) { c.Setup.URL = "" }, wantErr: true},
		{name: "relative setup url", mutate: func(c *Config) { c.Setup.URL = "/api/setup" }, wantErr: true},
		{name: "non-http devices url", mutate: func(c *Config) { c.Devices.BaseURL = "ftp://things.local" }, wantErr: true},
		{name: "bad events url", mutate: func(c *Config) { c.Events.BaseURL = "not a url" }, wantErr: true},
		{name: "unknown endpoint policy", mutate: func(c *Config) { c.Events.Endpoints = "some" }, wantErr: true},
		{name: "all endpoint policy", mutate: func(c *Config) { c.Events.Endpoints = EndpointsAll }, wantErr: false},
		{name: "zero initial delay", mutate: func(c *Config) { c.Events.Reconnect.InitialDelay = 0 }, wantErr: true},
		{name: "max below initial", mutate: func(c *Config) { c.Events.Reconnect.MaxDelay = 1 }, wantErr: true},
		{name: "fixed delay policy", mutate: func(c *Config) {
			c.Events.Reconnect.MaxDelay = c.Events.Reconnect.InitialDelay
			c.Events.Reconnect.Jitter = 0
		}, wantErr: false},
		{name: "jitter out of range", mutate: func(c *Config) { c.Events.Reconnect.Jitter = 1.5 }, wantErr: true},
		{name: "zero resolve concurrency", mutate: func(c *Config) { c.Devices.ResolveConcurrency = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "port ignored when api disabled", mutate: func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
		}, wantErr: false},
		{name: "influxdb enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "file logging without path", mutate: func(c *Config) { c.Logging.Output = "file" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"setup.url", "devices.base_url", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Setup:     SetupConfig{Timeout: 7},
		Devices:   DevicesConfig{RequestTimeout: 3},
		Actuation: ActuationConfig{Timeout: 12},
		Events:    EventsConfig{Reconnect: EventsReconnectConfig{InitialDelay: 5, MaxDelay: 60}},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetSetupTimeout(); got != 7*time.Second {
		t.Errorf("GetSetupTimeout() = %v, want 7s", got)
	}
	if got := cfg.GetDeviceTimeout(); got != 3*time.Second {
		t.Errorf("GetDeviceTimeout() = %v, want 3s", got)
	}
	if got := cfg.GetActuationTimeout(); got != 12*time.Second {
		t.Errorf("GetActuationTimeout() = %v, want 12s", got)
	}
	if got := cfg.GetReconnectMaxDelay(); got != time.Minute {
		t.Errorf("GetReconnectMaxDelay() = %v, want 1m", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_ACTUATOR_SETUP_URL", "http://setup.example.com/api")
	t.Setenv("GRAYLOGIC_ACTUATOR_DEVICES_BASE_URL", "http://things.example.com")
	t.Setenv("GRAYLOGIC_ACTUATOR_EVENTS_BASE_URL", "http://events.example.com")
	t.Setenv("GRAYLOGIC_ACTUATOR_MQTT_ENABLED", "true")
	t.Setenv("GRAYLOGIC_ACTUATOR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_ACTUATOR_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_ACTUATOR_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_ACTUATOR_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_ACTUATOR_API_PORT", "9100")
	t.Setenv("GRAYLOGIC_ACTUATOR_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_ACTUATOR_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Setup.URL != "http://setup.example.com/api" {
		t.Errorf("Setup.URL = %q", cfg.Setup.URL)
	}
	if cfg.Devices.BaseURL != "http://things.example.com" {
		t.Errorf("Devices.BaseURL = %q", cfg.Devices.BaseURL)
	}
	if cfg.Events.BaseURL != "http://events.example.com" {
		t.Errorf("Events.BaseURL = %q", cfg.Events.BaseURL)
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" || cfg.API.Port != 9100 {
		t.Errorf("API = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Events.Reconnect.InitialDelay != 5 {
		t.Errorf("defaultConfig Events.Reconnect.InitialDelay = %d, want 5", cfg.Events.Reconnect.InitialDelay)
	}
	if cfg.Events.Reconnect.MaxDelay != 60 {
		t.Errorf("defaultConfig Events.Reconnect.MaxDelay = %d, want 60", cfg.Events.Reconnect.MaxDelay)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Enabled {
		t.Error("defaultConfig should leave MQTT disabled")
	}
}
