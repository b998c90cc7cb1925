package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sweeney/sensor-relay/internal/channel"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestScalarFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in_pressure_input", "101.325\n")

	read := ScalarFile(path, 1)
	v, err := read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := v.(channel.Scalar); got != 101.325 {
		t.Errorf("expected 101.325, got %v", got)
	}
}

func TestScalarFileScale(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in_temp_input", "21500")

	read := ScalarFile(path, 0.001)
	v, err := read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := v.(channel.Scalar); got != 21.5 {
		t.Errorf("expected 21.5, got %v", got)
	}
}

func TestScalarFileMissing(t *testing.T) {
	read := ScalarFile(filepath.Join(t.TempDir(), "does-not-exist"), 1)
	_, err := read()
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}

func TestScalarFileGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "light_input", "not a number\n")

	read := ScalarFile(path, 1)
	_, err := read()
	if !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestVector3Files(t *testing.T) {
	dir := t.TempDir()
	x := writeFile(t, dir, "x", "100")
	y := writeFile(t, dir, "y", "-200")
	z := writeFile(t, dir, "z", "9810")

	read := Vector3Files(x, y, z, 0.001)
	v, err := read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	vec := v.(channel.Vector3)
	if vec.X != 0.1 || vec.Y != -0.2 || vec.Z != 9.81 {
		t.Errorf("unexpected vector %+v", vec)
	}
}

func TestIMUAccel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "in_accel_scale", "0.01")
	writeFile(t, dir, "in_accel_x_raw", "0")
	writeFile(t, dir, "in_accel_y_raw", "0")
	writeFile(t, dir, "in_accel_z_raw", "981")

	read := IMUAccel(dir)
	v, err := read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	vec := v.(channel.Vector3)
	if vec.Z != 9.81 {
		t.Errorf("expected z=9.81, got %v", vec.Z)
	}
}

func TestPositionFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fix.json",
		`{"lat": 49.172350, "lon": -123.070987, "hAcc": 14.0, "alt": 0.009, "vAcc": 8.0}`)

	read := PositionFile(path)
	v, err := read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	pos := v.(channel.Position)
	if pos.Lat != 49.172350 || pos.Lon != -123.070987 {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestPositionFileIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fix.json", `{"lat": 49.1, "lon": -123.0}`)

	read := PositionFile(path)
	_, err := read()
	if !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for incomplete fix, got %v", err)
	}
}

func TestFakeSequence(t *testing.T) {
	f := NewFake(channel.Scalar(1), channel.Scalar(2))
	for _, want := range []channel.Scalar{1, 2, 2, 2} {
		v, err := f.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if v.(channel.Scalar) != want {
			t.Errorf("expected %v, got %v", want, v)
		}
	}

	f.Reset()
	v, _ := f.Read()
	if v.(channel.Scalar) != 1 {
		t.Errorf("after Reset expected 1, got %v", v)
	}
}

func TestFakeScriptedError(t *testing.T) {
	f := NewFake(channel.Scalar(1), channel.Scalar(2))
	f.Errors = []error{nil, ErrIO}

	if _, err := f.Read(); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := f.Read(); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO on second read, got %v", err)
	}
}
