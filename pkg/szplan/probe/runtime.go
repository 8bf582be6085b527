package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// Runtime is an accelerator runtime that can enumerate devices.
type Runtime interface {
	Name() string
	// DeviceCount enumerates devices. Zero devices is not an error here.
	DeviceCount(ctx context.Context) (int, error)
	// Device returns the properties of device i, 0 <= i < DeviceCount.
	Device(ctx context.Context, i int) (types.DeviceInfo, error)
	// Versions returns the driver and runtime versions. Either may be zero.
	Versions(ctx context.Context) (driver, runtime types.Version, err error)
}

// retryDelay separates the first failed attempt from the retry.
var retryDelay = 200 * time.Millisecond

// ProbeDevices enumerates every device rt exposes. It returns
// ErrNoDeviceDetected when there are none, and a *RuntimeError (matching
// ErrDeviceQuery) when the runtime fails. A transient failure is retried once.
func ProbeDevices(ctx context.Context, rt Runtime) ([]types.DeviceInfo, error) {
	devices, err := probeDevices(ctx, rt)

	var rtErr *RuntimeError
	if errors.As(err, &rtErr) && rtErr.Transient() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		devices, err = probeDevices(ctx, rt)
	}
	return devices, err
}

func probeDevices(ctx context.Context, rt Runtime) ([]types.DeviceInfo, error) {
	n, err := rt.DeviceCount(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoDeviceDetected
	}

	driver, runtime, err := rt.Versions(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]types.DeviceInfo, 0, n)
	for i := range n {
		dev, err := rt.Device(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		dev.Index = i
		if dev.DriverVersion.IsZero() {
			dev.DriverVersion = driver
		}
		if dev.RuntimeVersion.IsZero() {
			dev.RuntimeVersion = runtime
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// NoRuntime is the runtime of a host without accelerators.
type NoRuntime struct{}

func (NoRuntime) Name() string { return "none" }

func (NoRuntime) DeviceCount(context.Context) (int, error) { return 0, nil }

func (NoRuntime) Device(_ context.Context, i int) (types.DeviceInfo, error) {
	return types.DeviceInfo{}, fmt.Errorf("%w: %d", ErrDeviceIndex, i)
}

func (NoRuntime) Versions(context.Context) (types.Version, types.Version, error) {
	return types.Version{}, types.Version{}, nil
}

// StaticRuntime serves a fixed device list. Failures makes the first
// enumerations fail with Err, which is useful for simulating flaky drivers.
type StaticRuntime struct {
	Devices []types.DeviceInfo
	Driver  types.Version
	Runtime types.Version

	Err      error
	Failures int

	calls int
}

func (s *StaticRuntime) Name() string { return "static" }

func (s *StaticRuntime) DeviceCount(context.Context) (int, error) {
	s.calls++
	if s.Err != nil && s.calls <= s.Failures {
		return 0, s.Err
	}
	return len(s.Devices), nil
}

func (s *StaticRuntime) Device(_ context.Context, i int) (types.DeviceInfo, error) {
	if i < 0 || i >= len(s.Devices) {
		return types.DeviceInfo{}, fmt.Errorf("%w: %d", ErrDeviceIndex, i)
	}
	return s.Devices[i], nil
}

func (s *StaticRuntime) Versions(context.Context) (types.Version, types.Version, error) {
	return s.Driver, s.Runtime, nil
}

// Calls returns how many enumerations were attempted.
func (s *StaticRuntime) Calls() int { return s.calls }

// Runtime kinds accepted by SelectRuntime.
const (
	RuntimeAuto = "auto"
	RuntimeSMI  = "smi"
	RuntimeNone = "none"
)

// SelectRuntime returns the runtime named by kind. "auto" uses nvidia-smi when
// smiPath resolves on PATH and NoRuntime otherwise.
func SelectRuntime(kind string, runner CommandRunner, smiPath string) (Runtime, error) {
	if smiPath == "" {
		smiPath = DefaultSMIPath
	}
	switch kind {
	case RuntimeNone:
		return NoRuntime{}, nil
	case RuntimeSMI:
		return NewSMIRuntime(runner, smiPath), nil
	case RuntimeAuto, "":
		if _, err := exec.LookPath(smiPath); err != nil {
			return NoRuntime{}, nil
		}
		return NewSMIRuntime(runner, smiPath), nil
	default:
		return nil, fmt.Errorf("unknown probe runtime %q (want %s, %s or %s)", kind, RuntimeAuto, RuntimeSMI, RuntimeNone)
	}
}
