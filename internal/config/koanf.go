package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sensor-relay/config.yaml",
	"/etc/sensor-relay/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the relay's environment variables.
const envPrefix = "RELAY_"

// Load builds the configuration from defaults, an optional YAML file, and
// RELAY_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile builds the configuration from defaults plus the given file.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RELAY_MQTT_BROKER -> mqtt.broker, RELAY_PUBLISH_MIN_INTERVAL ->
	// publish.min_interval, and so on. Sensor settings need the channel
	// name kept as one path segment: RELAY_SENSORS_LIGHT_CHANGE_BY ->
	// sensors.light.change_by.
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps RELAY_* variable names onto koanf paths. Only the
// section prefix becomes a path separator; underscores within key names
// are preserved.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	sections := []string{"publish", "store", "mqtt", "led", "web", "logging"}
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}

	if strings.HasPrefix(key, "sensors_") {
		rest := strings.TrimPrefix(key, "sensors_")
		for _, ch := range []string{"light", "pressure", "temperature", "accel", "gyro", "position"} {
			if strings.HasPrefix(rest, ch+"_") {
				return "sensors." + ch + "." + strings.TrimPrefix(rest, ch+"_")
			}
		}
		return ""
	}

	switch key {
	case "mode", "tick_interval":
		return key
	}

	// Unmapped variables are skipped rather than polluting the config.
	return ""
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
