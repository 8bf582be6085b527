package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// isolate points HOME and XDG_CONFIG_HOME at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tempDir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Resolve.QuantWidth != DefaultQuantWidth {
		t.Errorf("Resolve.QuantWidth = %d, want %d", cfg.Resolve.QuantWidth, DefaultQuantWidth)
	}
	if cfg.Resolve.ErrCtrl != DefaultErrCtrl {
		t.Errorf("Resolve.ErrCtrl = %q, want %q", cfg.Resolve.ErrCtrl, DefaultErrCtrl)
	}
	if cfg.Probe.Runtime != DefaultProbeRuntime {
		t.Errorf("Probe.Runtime = %q, want %q", cfg.Probe.Runtime, DefaultProbeRuntime)
	}
	if cfg.Probe.Timeout != DefaultProbeTimeout {
		t.Errorf("Probe.Timeout = %v, want %v", cfg.Probe.Timeout, DefaultProbeTimeout)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled = false, want true")
	}
	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, DefaultCacheTTL)
	}
	if cfg.Watch.Debounce != DefaultWatchDebounce {
		t.Errorf("Watch.Debounce = %v, want %v", cfg.Watch.Debounce, DefaultWatchDebounce)
	}
	if len(cfg.Watch.Patterns) != 1 || cfg.Watch.Patterns[0] != "nvidia*" {
		t.Errorf("Watch.Patterns = %v", cfg.Watch.Patterns)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Components["watcher"] != "warn" {
		t.Errorf("Logging.Components[watcher] = %q, want warn", cfg.Logging.Components["watcher"])
	}
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", AppName), `
resolve:
  quant_width: 4
  err_ctrl: integer
  fast: true
probe:
  runtime: none
  timeout: 3s
cache:
  enabled: false
  path: ~/caps
  ttl: 1h
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Resolve.QuantWidth != 4 {
		t.Errorf("Resolve.QuantWidth = %d, want 4", cfg.Resolve.QuantWidth)
	}
	if !cfg.Resolve.Fast {
		t.Error("Resolve.Fast = false, want true")
	}
	if cfg.Probe.Runtime != "none" {
		t.Errorf("Probe.Runtime = %q, want none", cfg.Probe.Runtime)
	}
	if cfg.Probe.Timeout != 3*time.Second {
		t.Errorf("Probe.Timeout = %v, want 3s", cfg.Probe.Timeout)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled = true, want false")
	}
	if cfg.Cache.Path != filepath.Join(home, "caps") {
		t.Errorf("Cache.Path = %q, want expanded ~/caps", cfg.Cache.Path)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	// Unset keys keep their defaults.
	if cfg.Probe.SMIPath != DefaultSMIPath {
		t.Errorf("Probe.SMIPath = %q, want %q", cfg.Probe.SMIPath, DefaultSMIPath)
	}
}

func TestLoad_XDGConfigHome(t *testing.T) {
	tempDir := isolate(t)
	xdgHome := filepath.Join(tempDir, "xdg-config")
	writeConfig(t, filepath.Join(xdgHome, AppName), "resolve:\n  quant_width: 1\n")
	t.Setenv("XDG_CONFIG_HOME", xdgHome)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolve.QuantWidth != 1 {
		t.Errorf("Resolve.QuantWidth = %d, want 1", cfg.Resolve.QuantWidth)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	tempDir := isolate(t)
	path := writeConfig(t, filepath.Join(tempDir, "elsewhere"), "probe:\n  smi_path: /opt/bin/nvidia-smi\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Probe.SMIPath != "/opt/bin/nvidia-smi" {
		t.Errorf("Probe.SMIPath = %q", cfg.Probe.SMIPath)
	}

	if _, err := Load(filepath.Join(tempDir, "missing.yaml")); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", AppName), "resolve: [unclosed\n")

	if _, err := Load(""); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("SZPLAN_RESOLVE_QUANT_WIDTH", "4")
	t.Setenv("SZPLAN_PROBE_RUNTIME", "smi")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolve.QuantWidth != 4 {
		t.Errorf("Resolve.QuantWidth = %d, want 4", cfg.Resolve.QuantWidth)
	}
	if cfg.Probe.Runtime != "smi" {
		t.Errorf("Probe.Runtime = %q, want smi", cfg.Probe.Runtime)
	}
}

func TestResolveConfig_Request(t *testing.T) {
	req, err := ResolveConfig{QuantWidth: 2, ErrCtrl: "float"}.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if req != types.DefaultRequest() {
		t.Errorf("Request() = %+v, want %+v", req, types.DefaultRequest())
	}

	req, err = ResolveConfig{QuantWidth: 4, ErrCtrl: "integer", ErrCtrlWidth: 2, EntropyWidth: 8, Fast: true}.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if req.ErrCtrl.Coding != types.ErrCtrlInteger || req.ErrCtrl.Width != 2 || req.EntropyWidth != 8 || !req.Fast {
		t.Errorf("Request() = %+v", req)
	}

	if _, err := (ResolveConfig{ErrCtrl: "decimal"}).Request(); err == nil {
		t.Error("Request() should reject an unknown coding")
	}
}

func TestLoggingConfig(t *testing.T) {
	lc, err := LoggingConfig{
		Level:    "debug",
		Path:     "/tmp/x.log",
		Rotation: RotationConfig{MaxSize: "1MB", MaxBackups: 2},
	}.LoggingConfig()
	if err != nil {
		t.Fatalf("LoggingConfig() error = %v", err)
	}
	if lc.Rotation.MaxSize != 1000*1000 {
		t.Errorf("Rotation.MaxSize = %d, want 1000000", lc.Rotation.MaxSize)
	}
	if lc.Rotation.MaxBackups != 2 {
		t.Errorf("Rotation.MaxBackups = %d, want 2", lc.Rotation.MaxBackups)
	}
	if lc.Path != "/tmp/x.log" || lc.Level != "debug" {
		t.Errorf("LoggingConfig() = %+v", lc)
	}

	lc, err = LoggingConfig{}.LoggingConfig()
	if err != nil {
		t.Fatal(err)
	}
	if lc.Path != DefaultLogPath() {
		t.Errorf("Path = %q, want default %q", lc.Path, DefaultLogPath())
	}

	if _, err := (LoggingConfig{Rotation: RotationConfig{MaxSize: "lots"}}).LoggingConfig(); err == nil {
		t.Error("LoggingConfig() should reject an unparseable size")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
		dir, err := ConfigDir()
		if err != nil {
			t.Fatal(err)
		}
		if dir != filepath.Join("/custom/xdg", AppName) {
			t.Errorf("ConfigDir() = %q", dir)
		}
	})

	t.Run("falls back to ~/.config", func(t *testing.T) {
		home := isolate(t)
		dir, err := ConfigDir()
		if err != nil {
			t.Fatal(err)
		}
		if dir != filepath.Join(home, ".config", AppName) {
			t.Errorf("ConfigDir() = %q", dir)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	t.Run("creates a loadable default config", func(t *testing.T) {
		isolate(t)

		path, err := WriteDefault()
		if err != nil {
			t.Fatalf("WriteDefault() error = %v", err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read config file: %v", err)
		}
		if !strings.Contains(string(content), "quant_width: 2") {
			t.Error("default config is missing resolve.quant_width")
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(default) error = %v", err)
		}
		if cfg.Cache.Retention != DefaultCacheRetention {
			t.Errorf("Cache.Retention = %v, want %v", cfg.Cache.Retention, DefaultCacheRetention)
		}
		if cfg.Watch.Debounce != DefaultWatchDebounce {
			t.Errorf("Watch.Debounce = %v, want %v", cfg.Watch.Debounce, DefaultWatchDebounce)
		}
	})

	t.Run("does not overwrite existing config", func(t *testing.T) {
		home := isolate(t)
		existing := "# existing config\nresolve:\n  quant_width: 1\n"
		path := writeConfig(t, filepath.Join(home, ".config", AppName), existing)

		if _, err := WriteDefault(); err != nil {
			t.Fatalf("WriteDefault() error = %v", err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != existing {
			t.Errorf("config file was overwritten: got %q", content)
		}
	})
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		in   string
		want string
	}{
		{"~/x", filepath.Join(home, "x")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPaths(t *testing.T) {
	if !strings.HasSuffix(DefaultLogPath(), filepath.Join(AppName, "szplan.log")) {
		t.Errorf("DefaultLogPath() = %q", DefaultLogPath())
	}
	if !strings.HasSuffix(DefaultCachePath(), filepath.Join(AppName, "capabilities")) {
		t.Errorf("DefaultCachePath() = %q", DefaultCachePath())
	}
	if got := (CacheConfig{Path: "/x"}).CachePath(); got != "/x" {
		t.Errorf("CachePath() = %q, want /x", got)
	}
	if got := (CacheConfig{}).CachePath(); got != DefaultCachePath() {
		t.Errorf("CachePath() = %q, want default", got)
	}
}
