package probe

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeviceDetected is returned when the runtime reports zero devices.
	ErrNoDeviceDetected = errors.New("no accelerator device detected")

	// ErrDeviceQuery is matched by every *RuntimeError.
	ErrDeviceQuery = errors.New("device query failed")

	// ErrHostProbeUnavailable marks a host field that could not be read.
	ErrHostProbeUnavailable = errors.New("host probe unavailable")

	// ErrDeviceIndex is returned for a device index outside the enumerated range.
	ErrDeviceIndex = errors.New("device index out of range")

	// ErrClosed is returned by a Context after Close.
	ErrClosed = errors.New("capability context closed")
)

// RuntimeError carries the accelerator runtime's own code and description.
type RuntimeError struct {
	Runtime string
	Op      string
	Code    int
	Desc    string

	transient bool
}

// NewRuntimeError builds a RuntimeError. Transient errors are retried once by
// ProbeDevices.
func NewRuntimeError(runtime, op string, code int, desc string, transient bool) *RuntimeError {
	return &RuntimeError{Runtime: runtime, Op: op, Code: code, Desc: desc, transient: transient}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s %s: code %d: %s", e.Runtime, e.Op, e.Code, e.Desc)
}

func (e *RuntimeError) Unwrap() error { return ErrDeviceQuery }

// Transient reports whether retrying the query may succeed.
func (e *RuntimeError) Transient() bool { return e.transient }
