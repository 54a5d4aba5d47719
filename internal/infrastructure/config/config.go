package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for camnode.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Identity  IdentityConfig  `yaml:"identity"`
	Database  DatabaseConfig  `yaml:"database"`
	Capture   CaptureConfig   `yaml:"capture"`
	Proximity ProximityConfig `yaml:"proximity"`
	Presence  PresenceConfig  `yaml:"presence"`
	Console   ConsoleConfig   `yaml:"console"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig describes how this node names itself on the bus.
type DeviceConfig struct {
	// TopicPrefix is the first segment of every identifier-scoped topic.
	TopicPrefix string `yaml:"topic_prefix"`

	// Tag is the "device" field carried in acks and sensor events.
	Tag string `yaml:"tag"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
	// CAFile is an optional PEM bundle used to verify the broker certificate.
	// When empty the system roots are used.
	CAFile string `yaml:"ca_file"`
	// ClientID is used verbatim when set; otherwise one is generated per process.
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
}

// IdentityConfig selects where the pairing record lives.
type IdentityConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the JSON record location for the file backend.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings (sqlite identity backend).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// CaptureConfig configures the frame capture collaborator and its worker pool.
type CaptureConfig struct {
	// Driver is "exec" (run a camera command) or "file" (serve a still image).
	Driver string `yaml:"driver"`

	// Command and Args are used by the exec driver. The command must write a
	// JPEG to stdout.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// ImagePath is used by the file driver.
	ImagePath string `yaml:"image_path"`

	// Timeout bounds a single capture, in seconds.
	Timeout int `yaml:"timeout"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ProximityConfig configures the distance detector.
type ProximityConfig struct {
	// FallbackThreshold (cm) is used when the identity carries no dimensions.
	// Zero disables sampling for such identities.
	FallbackThreshold float64 `yaml:"fallback_threshold"`
}

// PresenceConfig configures liveness announcements.
type PresenceConfig struct {
	// ActiveQoS is the QoS used for {status:true} announcements.
	ActiveQoS int `yaml:"active_qos"`

	// AnnounceOnConnect publishes {status:true} after every (re)connect while paired.
	AnnounceOnConnect bool `yaml:"announce_on_connect"`
}

// ConsoleConfig configures the operator console on stdin.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`

	// Force runs the console even when stdin is not a terminal (scripted input).
	Force bool `yaml:"force"`
}

// APIConfig contains local HTTP API server settings.
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

// WebSocketConfig contains settings for the /api/v1/events stream.
type WebSocketConfig struct {
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Identity backends.
const (
	IdentityBackendFile   = "file"
	IdentityBackendSQLite = "sqlite"
)

// Capture drivers.
const (
	CaptureDriverExec = "exec"
	CaptureDriverFile = "file"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAMNODE_SECTION_KEY
// For example: CAMNODE_MQTT_HOST, CAMNODE_IDENTITY_PATH
//
// A missing file is an error; use Defaults when running without one.
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns the built-in configuration with environment overrides applied.
func Defaults() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			TopicPrefix: "m5stack",
			Tag:         "esp32",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 2,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Identity: IdentityConfig{
			Backend: IdentityBackendFile,
			Path:    "./data/system_data.json",
		},
		Database: DatabaseConfig{
			Path:        "./data/camnode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Capture: CaptureConfig{
			Driver:    CaptureDriverExec,
			Command:   "libcamera-still",
			Args:      []string{"-n", "-t", "1", "--width", "1280", "--height", "720", "-e", "jpg", "-o", "-"},
			Timeout:   10,
			Workers:   1,
			QueueSize: 4,
		},
		Presence: PresenceConfig{
			ActiveQoS:         2,
			AnnounceOnConnect: true,
		},
		Console: ConsoleConfig{
			Enabled: true,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAMNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("CAMNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CAMNODE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("CAMNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CAMNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Identity
	if v := os.Getenv("CAMNODE_IDENTITY_PATH"); v != "" {
		cfg.Identity.Path = v
	}
	if v := os.Getenv("CAMNODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("CAMNODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.TopicPrefix == "" {
		errs = append(errs, "device.topic_prefix is required")
	}
	if strings.ContainsAny(c.Device.TopicPrefix, "+#/") {
		errs = append(errs, "device.topic_prefix must be a single topic level without wildcards")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Presence.ActiveQoS < 0 || c.Presence.ActiveQoS > 2 {
		errs = append(errs, "presence.active_qos must be 0, 1, or 2")
	}

	switch c.Identity.Backend {
	case IdentityBackendFile:
		if c.Identity.Path == "" {
			errs = append(errs, "identity.path is required for the file backend")
		}
	case IdentityBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, "identity.backend must be \"file\" or \"sqlite\"")
	}

	switch c.Capture.Driver {
	case CaptureDriverExec:
		if c.Capture.Command == "" {
			errs = append(errs, "capture.command is required for the exec driver")
		}
	case CaptureDriverFile:
		if c.Capture.ImagePath == "" {
			errs = append(errs, "capture.image_path is required for the file driver")
		}
	default:
		errs = append(errs, "capture.driver must be \"exec\" or \"file\"")
	}
	if c.Capture.Timeout <= 0 {
		errs = append(errs, "capture.timeout must be positive")
	}
	if c.Capture.Workers <= 0 {
		errs = append(errs, "capture.workers must be positive")
	}
	if c.Capture.QueueSize < 0 {
		errs = append(errs, "capture.queue_size cannot be negative")
	}

	if c.Proximity.FallbackThreshold < 0 {
		errs = append(errs, "proximity.fallback_threshold cannot be negative")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCaptureTimeout returns the capture timeout as a Duration.
func (c *Config) GetCaptureTimeout() time.Duration {
	return time.Duration(c.Capture.Timeout) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
