package resolve

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this package wraps one of them.
var (
	// ErrUnsupportedDescriptor means the descriptor or request names a
	// combination outside the decision tables. The caller must fix the request.
	ErrUnsupportedDescriptor = errors.New("unsupported descriptor")

	// ErrSparsityExceeded means the expected outlier fraction is too high for the
	// sparse-residual method. The caller may switch to dense outlier storage.
	ErrSparsityExceeded = errors.New("sparsity exceeded")

	// ErrConfigurationExceedsDeviceLimits means a resolved configuration needs
	// more of some device resource than the device reports.
	ErrConfigurationExceedsDeviceLimits = errors.New("configuration exceeds device limits")
)

// ResolutionError reports the descriptor or request field that failed resolution.
type ResolutionError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s=%v: %v", e.Field, e.Value, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func unsupported(field string, value interface{}, format string, args ...interface{}) error {
	return &ResolutionError{
		Field: field,
		Value: value,
		Err:   fmt.Errorf("%w: "+format, append([]interface{}{ErrUnsupportedDescriptor}, args...)...),
	}
}

// LimitError reports one device resource a configuration exceeds.
type LimitError struct {
	Device    int
	Resource  string
	Required  uint64
	Available uint64
}

func (e *LimitError) Error() string {
	if e.Available == 0 {
		return fmt.Sprintf("device %d: %s limit unknown (need %d)", e.Device, e.Resource, e.Required)
	}
	return fmt.Sprintf("device %d: %s needs %d, device has %d", e.Device, e.Resource, e.Required, e.Available)
}

func (e *LimitError) Unwrap() error {
	return ErrConfigurationExceedsDeviceLimits
}

// Reason returns a short label for an error returned by Resolve, used for
// metrics and log fields.
func Reason(err error) string {
	var re *ResolutionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSparsityExceeded):
		return "sparsity"
	case errors.As(err, &re):
		return re.Field
	default:
		return "unknown"
	}
}
