// Package config provides configuration management for szplan.
package config

import "time"

// Default configuration values for szplan.
const (
	// DefaultQuantWidth is the quantization code width in bytes.
	DefaultQuantWidth = 2

	// DefaultErrCtrl is the error-control coding.
	DefaultErrCtrl = "float"

	// DefaultProbeRuntime selects nvidia-smi when it is installed.
	DefaultProbeRuntime = "auto"

	// DefaultSMIPath is the nvidia-smi binary looked up on PATH.
	DefaultSMIPath = "nvidia-smi"

	// DefaultProbeTimeout bounds each external command of a probe.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultCacheTTL is how long a stored capability snapshot is reused.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultCacheRetention is how long the cache keeps a snapshot at all.
	DefaultCacheRetention = 7 * 24 * time.Hour

	// DefaultWatchDebounce is the quiet period before a device change is acted on.
	DefaultWatchDebounce = 500 * time.Millisecond

	// DefaultMaxLogSize is the log size at which the file is rotated.
	DefaultMaxLogSize = "10MB"

	// DefaultMaxLogBackups is the number of rotated log files kept.
	DefaultMaxLogBackups = 5
)

// DefaultWatchDirs are the directories watched for device nodes.
var DefaultWatchDirs = []string{"/dev"}

// DefaultWatchPatterns match NVIDIA device nodes.
var DefaultWatchPatterns = []string{"nvidia*"}
