package sensor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// readNumberFile reads a single number from a driver file.
func readNumberFile(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrFormat, path, err)
	}
	return v, nil
}

// ScalarFile returns a reader for a single-number driver file. The raw value
// is multiplied by scale (use 1 for files already in the target unit).
func ScalarFile(path string, scale float64) channel.Reader {
	return func() (channel.Value, error) {
		v, err := readNumberFile(path)
		if err != nil {
			return nil, err
		}
		return channel.Scalar(v * scale), nil
	}
}

// Vector3Files returns a reader combining three per-axis driver files, such
// as the IMU's in_accel_{x,y,z}_raw. The raw values are multiplied by scale.
func Vector3Files(xPath, yPath, zPath string, scale float64) channel.Reader {
	return func() (channel.Value, error) {
		x, err := readNumberFile(xPath)
		if err != nil {
			return nil, err
		}
		y, err := readNumberFile(yPath)
		if err != nil {
			return nil, err
		}
		z, err := readNumberFile(zPath)
		if err != nil {
			return nil, err
		}
		return channel.Vector3{X: x * scale, Y: y * scale, Z: z * scale}, nil
	}
}

// IMUAccel returns an acceleration reader for an IMU sysfs directory laid
// out as in_accel_{x,y,z}_raw plus in_accel_scale.
func IMUAccel(dir string) channel.Reader {
	return imuReader(dir, "in_accel")
}

// IMUGyro returns an angular-velocity reader for an IMU sysfs directory laid
// out as in_anglvel_{x,y,z}_raw plus in_anglvel_scale.
func IMUGyro(dir string) channel.Reader {
	return imuReader(dir, "in_anglvel")
}

func imuReader(dir, prefix string) channel.Reader {
	return func() (channel.Value, error) {
		scale, err := readNumberFile(filepath.Join(dir, prefix+"_scale"))
		if err != nil {
			return nil, err
		}
		read := Vector3Files(
			filepath.Join(dir, prefix+"_x_raw"),
			filepath.Join(dir, prefix+"_y_raw"),
			filepath.Join(dir, prefix+"_z_raw"),
			scale,
		)
		return read()
	}
}

// positionFix is the JSON layout written by the GPS helper.
type positionFix struct {
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	HAcc *float64 `json:"hAcc"`
	Alt  *float64 `json:"alt"`
	VAcc *float64 `json:"vAcc"`
}

// PositionFile returns a reader for a JSON position fix file of the form
//
//	{"lat": 49.172350, "lon": -123.070987, "hAcc": 14.0, "alt": 0.009, "vAcc": 8.0}
//
// A missing member or non-numeric value is a format error.
func PositionFile(path string) channel.Reader {
	return func() (channel.Value, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
		}
		var fix positionFix
		if err := json.Unmarshal(data, &fix); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrFormat, path, err)
		}
		if fix.Lat == nil || fix.Lon == nil || fix.HAcc == nil || fix.Alt == nil || fix.VAcc == nil {
			return nil, fmt.Errorf("%w: %s: incomplete fix", ErrFormat, path)
		}
		return channel.Position{
			Lat:  *fix.Lat,
			Lon:  *fix.Lon,
			HAcc: *fix.HAcc,
			Alt:  *fix.Alt,
			VAcc: *fix.VAcc,
		}, nil
	}
}
