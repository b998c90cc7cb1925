// Package sensor provides sensor readers with hardware abstraction.
// The real implementations parse values from driver sysfs files.
// The fake implementation allows testing without hardware.
package sensor

import "errors"

// ErrIO means the sensor could not be reached (missing or unreadable driver
// file). Transient: the channel is skipped for the cycle and retried on the
// next tick.
var ErrIO = errors.New("sensor: i/o error")

// ErrFormat means the driver file contents could not be parsed into a value.
var ErrFormat = errors.New("sensor: format error")

// Default driver file locations on the target device.
const (
	DefaultLightFile       = "/sys/devices/platform/sensors/light_input"
	DefaultPressureFile    = "/sys/devices/platform/sensors/in_pressure_input"
	DefaultTemperatureFile = "/sys/devices/platform/sensors/in_temp_input"
	DefaultIMUDir          = "/sys/devices/platform/sensors/imu"
	DefaultPositionFile    = "/run/gps/fix.json"
)
