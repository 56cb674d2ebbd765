package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the device bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Link      LinkConfig      `yaml:"link"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the bridge on the message bus.
type DeviceConfig struct {
	// ID is the device identifier used in every topic and payload.
	// Empty means auto-generate from the primary network interface.
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	FirmwareVersion string `yaml:"firmware_version"`

	// MaxSensors and MaxActuators bound the registries.
	MaxSensors   int `yaml:"max_sensors"`
	MaxActuators int `yaml:"max_actuators"`
}

// LinkConfig contains local network link settings.
type LinkConfig struct {
	// Interface is the network interface whose carrier state gates the
	// transport. Empty means assume the link is always available.
	Interface string `yaml:"interface"`

	// MaxRetries is the number of link bring-up attempts before the
	// bridge gives up during startup.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the pause between bring-up attempts, in seconds.
	RetryDelay int `yaml:"retry_delay"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	QoS       QoSConfig           `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig contains TLS settings for the broker connection.
type MQTTTLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CACertFile, CertFile and KeyFile are PEM file paths. CACertFile
	// alone gives server verification; cert+key adds mutual TLS.
	CACertFile string `yaml:"ca_cert_file"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`

	// SkipVerify disables server certificate verification. Development
	// use only; the transport logs a warning on every connect while set.
	SkipVerify bool `yaml:"skip_verify"`

	// ALPN protocol names offered during the TLS handshake.
	ALPN []string `yaml:"alpn"`
}

// QoSConfig sets the delivery guarantee per message class.
type QoSConfig struct {
	Sensor   int `yaml:"sensor"`
	Actuator int `yaml:"actuator"`
	Status   int `yaml:"status"`
	Error    int `yaml:"error"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TelemetryConfig controls the periodic sensor publishing cycle.
type TelemetryConfig struct {
	// PublishInterval is the base cycle period in seconds.
	PublishInterval int `yaml:"publish_interval"`

	// CommandTimeout bounds a single actuator command execution, in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// QueueDepth bounds the inbound command queue.
	QueueDepth int `yaml:"queue_depth"`
}

// WatchdogConfig controls the health monitor.
type WatchdogConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between health samples, in seconds.
	Interval int `yaml:"interval"`

	// MemoryThreshold is the free-memory floor in bytes below which a
	// low-memory error is reported.
	MemoryThreshold uint64 `yaml:"memory_threshold"`
}

// APIConfig contains the local status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains the telemetry history sink settings.
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DEVICEBRIDGE_SECTION_KEY
// For example: DEVICEBRIDGE_MQTT_HOST, DEVICEBRIDGE_DEVICE_ID
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. A bridge built from
// the defaults connects to a local broker with best-effort sensor data,
// at-least-once commands and status, and exactly-once errors.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:            "device-bridge",
			FirmwareVersion: "1.0.0",
			MaxSensors:      16,
			MaxActuators:    16,
		},
		Link: LinkConfig{
			MaxRetries: 10,
			RetryDelay: 1,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: QoSConfig{
				Sensor:   0,
				Actuator: 1,
				Status:   1,
				Error:    2,
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Telemetry: TelemetryConfig{
			PublishInterval: 30,
			CommandTimeout:  5,
			QueueDepth:      10,
		},
		Watchdog: WatchdogConfig{
			Enabled:         true,
			Interval:        30,
			MemoryThreshold: 10240,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8093,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DEVICEBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("DEVICEBRIDGE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("DEVICEBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DEVICEBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DEVICEBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DEVICEBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("DEVICEBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("DEVICEBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.MaxSensors <= 0 {
		errs = append(errs, "device.max_sensors must be positive")
	}
	if c.Device.MaxActuators <= 0 {
		errs = append(errs, "device.max_actuators must be positive")
	}

	// Link validation
	if c.Link.MaxRetries < 0 {
		errs = append(errs, "link.max_retries must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	for _, q := range []struct {
		name  string
		value int
	}{
		{"mqtt.qos.sensor", c.MQTT.QoS.Sensor},
		{"mqtt.qos.actuator", c.MQTT.QoS.Actuator},
		{"mqtt.qos.status", c.MQTT.QoS.Status},
		{"mqtt.qos.error", c.MQTT.QoS.Error},
	} {
		if q.value < 0 || q.value > 2 {
			errs = append(errs, q.name+" must be 0, 1, or 2")
		}
	}
	if (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	// Telemetry validation
	if c.Telemetry.PublishInterval <= 0 {
		errs = append(errs, "telemetry.publish_interval must be positive")
	}
	if c.Telemetry.CommandTimeout <= 0 {
		errs = append(errs, "telemetry.command_timeout must be positive")
	}
	if c.Telemetry.QueueDepth <= 0 {
		errs = append(errs, "telemetry.queue_depth must be positive")
	}

	// Watchdog validation
	if c.Watchdog.Enabled && c.Watchdog.Interval <= 0 {
		errs = append(errs, "watchdog.interval must be positive")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set DEVICEBRIDGE_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PublishInterval returns the telemetry cycle period as a Duration.
func (c Config) PublishInterval() time.Duration {
	return time.Duration(c.Telemetry.PublishInterval) * time.Second
}

// CommandTimeout returns the actuator command timeout as a Duration.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.Telemetry.CommandTimeout) * time.Second
}

// WatchdogInterval returns the health monitor period as a Duration.
func (c Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.Interval) * time.Second
}

// LinkRetryDelay returns the pause between link attempts as a Duration.
func (c Config) LinkRetryDelay() time.Duration {
	return time.Duration(c.Link.RetryDelay) * time.Second
}
