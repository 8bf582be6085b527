package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// AppName names the config, state and cache directories.
const AppName = "szplan"

// EnvPrefix prefixes environment overrides (e.g. SZPLAN_RESOLVE_QUANT_WIDTH).
const EnvPrefix = "SZPLAN"

// ResolveConfig holds the default request options.
type ResolveConfig struct {
	QuantWidth           int    `mapstructure:"quant_width"`
	ErrCtrl              string `mapstructure:"err_ctrl"`
	ErrCtrlWidth         int    `mapstructure:"err_ctrl_width"`
	EntropyWidth         int    `mapstructure:"entropy_width"`
	Fast                 bool   `mapstructure:"fast"`
	ConservativeMetadata bool   `mapstructure:"conservative_metadata"`
}

// ProbeConfig configures host and device probing.
type ProbeConfig struct {
	Runtime string        `mapstructure:"runtime"`
	SMIPath string        `mapstructure:"smi_path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig configures the capability snapshot cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	TTL       time.Duration `mapstructure:"ttl"`
	Retention time.Duration `mapstructure:"retention"`
}

// WatchConfig configures device hot-plug watching.
type WatchConfig struct {
	Dirs        []string      `mapstructure:"dirs"`
	Patterns    []string      `mapstructure:"patterns"`
	Debounce    time.Duration `mapstructure:"debounce"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	Resolve ResolveConfig `mapstructure:"resolve"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// New returns a viper instance with defaults, environment binding and the
// config file read. An explicit configFile must exist; otherwise the file is
// looked up in:
//   - $XDG_CONFIG_HOME/szplan/config.yaml
//   - $HOME/.config/szplan/config.yaml
//
// and a missing file is not an error.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, AppName))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", AppName))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("resolve.quant_width", DefaultQuantWidth)
	v.SetDefault("resolve.err_ctrl", DefaultErrCtrl)
	v.SetDefault("resolve.err_ctrl_width", 0)
	v.SetDefault("resolve.entropy_width", 0)
	v.SetDefault("resolve.fast", false)
	v.SetDefault("resolve.conservative_metadata", false)

	v.SetDefault("probe.runtime", DefaultProbeRuntime)
	v.SetDefault("probe.smi_path", DefaultSMIPath)
	v.SetDefault("probe.timeout", DefaultProbeTimeout)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "") // Empty means use DefaultCachePath
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.retention", DefaultCacheRetention)

	v.SetDefault("watch.dirs", DefaultWatchDirs)
	v.SetDefault("watch.patterns", DefaultWatchPatterns)
	v.SetDefault("watch.debounce", DefaultWatchDebounce)
	v.SetDefault("watch.metrics_addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", DefaultMaxLogSize)
	v.SetDefault("logging.rotation.max_backups", DefaultMaxLogBackups)
	v.SetDefault("logging.components", map[string]string{
		"resolve": "info",
		"probe":   "info",
		"watcher": "warn",
	})
}

// Decode unmarshals v into a Config and expands ~ in paths.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.Cache.Path, err = ExpandPath(cfg.Cache.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads configuration from file and environment variables.
func Load(configFile string) (*Config, error) {
	v, err := New(configFile)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Request converts the resolve section into a request.
func (c ResolveConfig) Request() (types.Request, error) {
	coding, err := types.ParseErrCtrlCoding(c.ErrCtrl)
	if err != nil {
		return types.Request{}, err
	}
	return types.Request{
		QuantCodeWidth:       c.QuantWidth,
		ErrCtrl:              types.ErrCtrlSpec{Coding: coding, Width: c.ErrCtrlWidth},
		EntropyWidth:         c.EntropyWidth,
		Fast:                 c.Fast,
		ConservativeMetadata: c.ConservativeMetadata,
	}, nil
}

// CachePath returns the configured cache path or the default.
func (c CacheConfig) CachePath() string {
	if c.Path != "" {
		return c.Path
	}
	return DefaultCachePath()
}

// LoggingConfig converts the logging section for logging.Init.
func (c LoggingConfig) LoggingConfig() (logging.Config, error) {
	rotation := logging.DefaultRotationConfig()
	if c.Rotation.MaxSize != "" {
		size, err := humanize.ParseBytes(c.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		rotation.MaxSize = int64(size)
	}
	if c.Rotation.MaxBackups > 0 {
		rotation.MaxBackups = c.Rotation.MaxBackups
	}

	path := c.Path
	if path == "" {
		path = DefaultLogPath()
	}

	return logging.Config{
		Level:      c.Level,
		Path:       path,
		Rotation:   rotation,
		Components: c.Components,
	}, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", AppName), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

func defaultConfig() string {
	return fmt.Sprintf(`# szplan configuration

# Default request options for resolve and validate
resolve:
  # Quantization code width in bytes: 1, 2 or 4
  quant_width: %d
  # Error-control coding: float or integer
  err_ctrl: %s
  # Error-control width in bytes (0 derives it)
  err_ctrl_width: 0
  # Entropy code width in bytes: 0 (derived), 4 or 8
  entropy_width: 0
  # Single-precision fast path
  fast: false
  # Always use 8-byte metadata and reducer types
  conservative_metadata: false

# Device probing
probe:
  # Accelerator runtime: auto, smi or none
  runtime: %s
  smi_path: %s
  timeout: %s

# Capability snapshot cache
cache:
  enabled: true
  # Empty means use default: $XDG_CACHE_HOME/szplan/capabilities
  path: ""
  # Reuse a stored snapshot younger than this
  ttl: %s
  retention: %s

# Device hot-plug watching (szplan watch)
watch:
  dirs:
    - /dev
  patterns:
    - "nvidia*"
  debounce: %s
  # Serve prometheus metrics on this address (e.g. :9464); empty disables
  metrics_addr: ""

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/szplan/szplan.log)
  path: ""
  rotation:
    max_size: %s
    max_backups: %d
  # Per-component log levels
  components:
    resolve: info
    probe: info
    watcher: warn
`, DefaultQuantWidth, DefaultErrCtrl,
		DefaultProbeRuntime, DefaultSMIPath, DefaultProbeTimeout,
		DefaultCacheTTL, DefaultCacheRetention,
		DefaultWatchDebounce,
		DefaultMaxLogSize, DefaultMaxLogBackups)
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/szplan/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// CacheDir returns $XDG_CACHE_HOME/szplan/ for the capability cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), AppName+".log")
}

// DefaultCachePath returns the default capability cache path.
func DefaultCachePath() string {
	return filepath.Join(CacheDir(), "capabilities")
}
