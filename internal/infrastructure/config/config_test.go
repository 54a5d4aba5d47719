package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  topic_prefix: "m5stack"
  tag: "rpi4"
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
    client_id: "camnode-test"
  qos: 1
identity:
  backend: "sqlite"
database:
  path: "/tmp/camnode-test.db"
capture:
  driver: "file"
  image_path: "/tmp/still.jpg"
  timeout: 3
proximity:
  fallback_threshold: 120
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "camnode.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Tag != "rpi4" {
		t.Errorf("Device.Tag = %q, want %q", cfg.Device.Tag, "rpi4")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("MQTT.Broker.TLS = false, want true")
	}
	if cfg.Identity.Backend != IdentityBackendSQLite {
		t.Errorf("Identity.Backend = %q, want %q", cfg.Identity.Backend, IdentityBackendSQLite)
	}
	if cfg.Capture.Driver != CaptureDriverFile {
		t.Errorf("Capture.Driver = %q, want %q", cfg.Capture.Driver, CaptureDriverFile)
	}
	if cfg.GetCaptureTimeout().Seconds() != 3 {
		t.Errorf("GetCaptureTimeout() = %v, want 3s", cfg.GetCaptureTimeout())
	}
	if cfg.Proximity.FallbackThreshold != 120 {
		t.Errorf("Proximity.FallbackThreshold = %v, want 120", cfg.Proximity.FallbackThreshold)
	}

	// Unset keys keep their defaults.
	if cfg.Capture.Workers != 1 {
		t.Errorf("Capture.Workers = %d, want default 1", cfg.Capture.Workers)
	}
	if cfg.Presence.ActiveQoS != 2 {
		t.Errorf("Presence.ActiveQoS = %d, want default 2", cfg.Presence.ActiveQoS)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/camnode.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "camnode.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
identity:
  backend: "etcd"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "camnode.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "identity.backend") {
		t.Errorf("Load() error = %v, want mention of identity.backend", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}
	if cfg.Device.TopicPrefix != "m5stack" {
		t.Errorf("Device.TopicPrefix = %q, want m5stack", cfg.Device.TopicPrefix)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty topic prefix",
			mutate:  func(c *Config) { c.Device.TopicPrefix = "" },
			wantErr: true,
		},
		{
			name:    "wildcard in topic prefix",
			mutate:  func(c *Config) { c.Device.TopicPrefix = "m5stack/#" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid active QoS",
			mutate:  func(c *Config) { c.Presence.ActiveQoS = -1 },
			wantErr: true,
		},
		{
			name:    "broker port out of range",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "file backend without path",
			mutate:  func(c *Config) { c.Identity.Path = "" },
			wantErr: true,
		},
		{
			name: "sqlite backend without database path",
			mutate: func(c *Config) {
				c.Identity.Backend = IdentityBackendSQLite
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "exec driver without command",
			mutate:  func(c *Config) { c.Capture.Command = "" },
			wantErr: true,
		},
		{
			name:    "file driver without image",
			mutate:  func(c *Config) { c.Capture.Driver = CaptureDriverFile },
			wantErr: true,
		},
		{
			name:    "zero capture timeout",
			mutate:  func(c *Config) { c.Capture.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Capture.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "negative fallback threshold",
			mutate:  func(c *Config) { c.Proximity.FallbackThreshold = -1 },
			wantErr: true,
		},
		{
			name: "enabled api with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr: true,
		},
		{
			name:    "disabled api ignores port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
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
	}

	if got := cfg.API.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}

	if got := cfg.API.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}

	if got := cfg.API.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("CAMNODE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("CAMNODE_MQTT_PORT", "8883")
	t.Setenv("CAMNODE_MQTT_USERNAME", "art")
	t.Setenv("CAMNODE_MQTT_PASSWORD", "secret")
	t.Setenv("CAMNODE_IDENTITY_PATH", "/var/lib/camnode/identity.json")
	t.Setenv("CAMNODE_DATABASE_PATH", "/var/lib/camnode/camnode.db")
	t.Setenv("CAMNODE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "art" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "art")
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "secret")
	}
	if cfg.Identity.Path != "/var/lib/camnode/identity.json" {
		t.Errorf("Identity.Path = %q", cfg.Identity.Path)
	}
	if cfg.Database.Path != "/var/lib/camnode/camnode.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("CAMNODE_MQTT_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}
