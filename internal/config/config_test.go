package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "polling", cfg.Mode)
	assert.Equal(t, 1*time.Second, cfg.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Publish.MinInterval)
	assert.Equal(t, 120*time.Second, cfg.Publish.MaxInterval)
	assert.Equal(t, 60*time.Second, cfg.Publish.TimeToStale)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.True(t, cfg.Sensors.Light.Enabled)
	assert.False(t, cfg.Sensors.Position.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
mode: buffered
tick_interval: 2s
publish:
  min_interval: 5s
store:
  backend: badger
  path: /tmp/relay-store
  depth: 50
mqtt:
  broker: tcp://broker.local:1883
sensors:
  light:
    threshold: 150
    change_by: 75
  position:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "buffered", cfg.Mode)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.Publish.MinInterval)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, 50, cfg.Store.Depth)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, 150.0, cfg.Sensors.Light.Threshold)
	assert.Equal(t, 75.0, cfg.Sensors.Light.ChangeBy)
	assert.True(t, cfg.Sensors.Position.Enabled)

	// Untouched settings keep their defaults.
	assert.Equal(t, 120*time.Second, cfg.Publish.MaxInterval)
	assert.True(t, cfg.Sensors.Pressure.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("RELAY_MODE", "buffered")
	t.Setenv("RELAY_MQTT_BROKER", "tcp://env.local:1883")
	t.Setenv("RELAY_PUBLISH_MIN_INTERVAL", "30s")
	t.Setenv("RELAY_SENSORS_LIGHT_CHANGE_BY", "42")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "buffered", cfg.Mode)
	assert.Equal(t, "tcp://env.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, 30*time.Second, cfg.Publish.MinInterval)
	assert.Equal(t, 42.0, cfg.Sensors.Light.ChangeBy)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Mode = "streaming" },
			wantErr: "mode",
		},
		{
			name:    "zero tick",
			mutate:  func(c *Config) { c.TickInterval = 0 },
			wantErr: "tick_interval",
		},
		{
			name:    "max below min",
			mutate:  func(c *Config) { c.Publish.MaxInterval = 5 * time.Second },
			wantErr: "max_interval",
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.Store.Backend = "redis" },
			wantErr: "store.backend",
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Store.Backend = "badger"
				c.Store.Path = ""
			},
			wantErr: "store.path",
		},
		{
			name:    "zero depth",
			mutate:  func(c *Config) { c.Store.Depth = 0 },
			wantErr: "store.depth",
		},
		{
			name:    "missing broker",
			mutate:  func(c *Config) { c.MQTT.Broker = "" },
			wantErr: "mqtt.broker",
		},
		{
			name:    "enabled sensor without path",
			mutate:  func(c *Config) { c.Sensors.Light.Path = "" },
			wantErr: "sensors.light.path",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Sensors.Pressure.Threshold = -1 },
			wantErr: "sensors.pressure.threshold",
		},
		{
			name:    "web enabled without addr",
			mutate:  func(c *Config) { c.Web.Addr = "" },
			wantErr: "web.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
