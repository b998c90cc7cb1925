// Package config loads the relay's configuration with layered sources:
// built-in defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/scheduler"
	"github.com/sweeney/sensor-relay/internal/sensor"
	"github.com/sweeney/sensor-relay/internal/store"
)

// Config is the full configuration surface.
type Config struct {
	// Mode selects the pipeline trigger: "polling" or "buffered".
	Mode string `koanf:"mode"`

	// TickInterval is the sensor sampling period.
	TickInterval time.Duration `koanf:"tick_interval"`

	Publish PublishConfig `koanf:"publish"`
	Store   StoreConfig   `koanf:"store"`
	MQTT    MQTTConfig    `koanf:"mqtt"`
	Sensors SensorsConfig `koanf:"sensors"`
	LED     LEDConfig     `koanf:"led"`
	Web     WebConfig     `koanf:"web"`
	Logging LoggingConfig `koanf:"logging"`
}

// PublishConfig holds the publish timing bounds (polling mode).
type PublishConfig struct {
	MinInterval      time.Duration `koanf:"min_interval"`
	MaxInterval      time.Duration `koanf:"max_interval"`
	TimeToStale      time.Duration `koanf:"time_to_stale"`
	MaxRecordEntries int           `koanf:"max_record_entries"`
}

// StoreConfig holds the sample buffer settings (buffered mode).
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`

	// Path is the Badger database directory.
	Path string `koanf:"path"`

	// Depth is the number of samples buffered per channel.
	Depth int `koanf:"depth"`
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker         string        `koanf:"broker"`
	ClientID       string        `koanf:"client_id"`
	Topic          string        `koanf:"topic"`
	CommandTopic   string        `koanf:"command_topic"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// SensorConfig configures one sensor channel.
type SensorConfig struct {
	Enabled bool `koanf:"enabled"`

	// Path is the driver file (scalar sensors, position fix) or the IIO
	// device directory (accel, gyro).
	Path string `koanf:"path"`

	// Scale converts the raw driver value to engineering units.
	Scale float64 `koanf:"scale"`

	// Threshold is the significance delta (scalars) or delta magnitude
	// (vectors) below which a fresh reading is not recorded.
	Threshold float64 `koanf:"threshold"`

	// ChangeBy filters scalar samples at the store in buffered mode.
	ChangeBy float64 `koanf:"change_by"`
}

// SensorsConfig configures all channels.
type SensorsConfig struct {
	Light       SensorConfig `koanf:"light"`
	Pressure    SensorConfig `koanf:"pressure"`
	Temperature SensorConfig `koanf:"temperature"`
	Accel       SensorConfig `koanf:"accel"`
	Gyro        SensorConfig `koanf:"gyro"`
	Position    SensorConfig `koanf:"position"`
}

// LEDConfig configures the command-driven status LED.
type LEDConfig struct {
	Enabled bool `koanf:"enabled"`
	Pin     int  `koanf:"pin"`
}

// WebConfig configures the status/metrics HTTP server.
type WebConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Output string `koanf:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:         "polling",
		TickInterval: scheduler.DefaultTickInterval,
		Publish: PublishConfig{
			MinInterval: scheduler.DefaultMinInterval,
			MaxInterval: scheduler.DefaultMaxInterval,
			TimeToStale: scheduler.DefaultTimeToStale,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    "/data/sensor-relay/store",
			Depth:   store.DefaultDepth,
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://127.0.0.1:1883",
			ClientID:       "sensor-relay",
			Topic:          "sensors/records",
			CommandTopic:   "sensors/commands",
			PublishTimeout: 5 * time.Second,
		},
		Sensors: SensorsConfig{
			Light: SensorConfig{
				Enabled:   true,
				Path:      sensor.DefaultLightFile,
				Scale:     1,
				Threshold: channel.DefaultLightThreshold,
				ChangeBy:  channel.DefaultLightThreshold,
			},
			Pressure: SensorConfig{
				Enabled:   true,
				Path:      sensor.DefaultPressureFile,
				Scale:     0.001, // Pa to kPa
				Threshold: channel.DefaultPressureThreshold,
				ChangeBy:  channel.DefaultPressureThreshold,
			},
			Temperature: SensorConfig{
				Enabled:   true,
				Path:      sensor.DefaultTemperatureFile,
				Scale:     0.001, // millidegrees to degrees C
				Threshold: channel.DefaultTemperatureThreshold,
				ChangeBy:  channel.DefaultTemperatureThreshold,
			},
			Accel: SensorConfig{
				Enabled:   true,
				Path:      sensor.DefaultIMUDir,
				Scale:     1,
				Threshold: channel.DefaultAccelThreshold,
			},
			Gyro: SensorConfig{
				Enabled:   true,
				Path:      sensor.DefaultIMUDir,
				Scale:     1,
				Threshold: channel.DefaultGyroThreshold,
			},
			Position: SensorConfig{
				Enabled: false,
				Path:    sensor.DefaultPositionFile,
				Scale:   1,
			},
		},
		LED: LEDConfig{
			Enabled: false,
			Pin:     12,
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    ":8099",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Validate checks configuration invariants. These are the only failures
// that terminate the process.
func (c *Config) Validate() error {
	switch c.Mode {
	case "polling", "buffered":
	default:
		return fmt.Errorf("mode must be polling or buffered, got %q", c.Mode)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.Publish.MinInterval <= 0 {
		return fmt.Errorf("publish.min_interval must be positive, got %s", c.Publish.MinInterval)
	}
	if c.Publish.MaxInterval < c.Publish.MinInterval {
		return fmt.Errorf("publish.max_interval %s must not be below min_interval %s",
			c.Publish.MaxInterval, c.Publish.MinInterval)
	}
	if c.Publish.TimeToStale <= 0 {
		return fmt.Errorf("publish.time_to_stale must be positive, got %s", c.Publish.TimeToStale)
	}
	if c.Publish.MaxRecordEntries < 0 {
		return fmt.Errorf("publish.max_record_entries must not be negative, got %d", c.Publish.MaxRecordEntries)
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the badger backend")
		}
	default:
		return fmt.Errorf("store.backend must be memory or badger, got %q", c.Store.Backend)
	}
	if c.Store.Depth <= 0 {
		return fmt.Errorf("store.depth must be positive, got %d", c.Store.Depth)
	}

	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	for name, sc := range map[string]SensorConfig{
		"light":       c.Sensors.Light,
		"pressure":    c.Sensors.Pressure,
		"temperature": c.Sensors.Temperature,
		"accel":       c.Sensors.Accel,
		"gyro":        c.Sensors.Gyro,
		"position":    c.Sensors.Position,
	} {
		if !sc.Enabled {
			continue
		}
		if sc.Path == "" {
			return fmt.Errorf("sensors.%s.path is required when enabled", name)
		}
		if sc.Threshold < 0 || math.IsNaN(sc.Threshold) {
			return fmt.Errorf("sensors.%s.threshold must not be negative", name)
		}
		if sc.ChangeBy < 0 {
			return fmt.Errorf("sensors.%s.change_by must not be negative", name)
		}
	}

	if c.Web.Enabled && c.Web.Addr == "" {
		return fmt.Errorf("web.addr is required when web is enabled")
	}
	return nil
}
