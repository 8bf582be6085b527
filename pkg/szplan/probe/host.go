package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/cpu"

	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// Byte order strings, as lscpu prints them.
const (
	LittleEndian = "Little Endian"
	BigEndian    = "Big Endian"
)

// HostProber reads CPU model, total memory and byte order. Each field is
// looked up independently; a field that cannot be determined stays empty.
type HostProber struct {
	Runner CommandRunner

	// CPUInfoPath and MemInfoPath default to /proc/cpuinfo and /proc/meminfo.
	CPUInfoPath string
	MemInfoPath string

	// Native fallbacks, replaceable in tests.
	nativeMemory   func() (uint64, error)
	nativeCPUModel func() (string, error)
	bigEndian      bool
}

// NewHostProber returns a prober that uses runner for external commands.
func NewHostProber(runner CommandRunner) *HostProber {
	return &HostProber{
		Runner:         runner,
		CPUInfoPath:    "/proc/cpuinfo",
		MemInfoPath:    "/proc/meminfo",
		nativeMemory:   totalMemory,
		nativeCPUModel: cpuModel,
		bigEndian:      cpu.IsBigEndian,
	}
}

// Probe returns what it could learn about the host. The error, when non-nil,
// wraps ErrHostProbeUnavailable once per missing field and is informational:
// the returned HostInfo is still usable.
func (p *HostProber) Probe(ctx context.Context) (types.HostInfo, error) {
	info := types.HostInfo{LogicalCPUs: runtime.NumCPU()}
	var errs []error

	model, err := p.cpuModel(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: cpu model: %v", ErrHostProbeUnavailable, err))
	}
	info.CPUModel = model

	mem, err := p.memory()
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: memory: %v", ErrHostProbeUnavailable, err))
	}
	info.TotalMemory = mem

	info.ByteOrder = p.byteOrder(ctx)

	return info, errors.Join(errs...)
}

func (p *HostProber) cpuModel(ctx context.Context) (string, error) {
	if model, err := fieldFromFile(p.CPUInfoPath, "model name"); err == nil && model != "" {
		return model, nil
	}

	if p.nativeCPUModel != nil {
		if model, err := p.nativeCPUModel(); err == nil && model != "" {
			return model, nil
		}
	}

	if p.Runner != nil && runtime.GOOS == "darwin" {
		out, err := p.Runner.Run(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
	}
	return "", errors.New("no source reported a model name")
}

func (p *HostProber) memory() (uint64, error) {
	if v, err := fieldFromFile(p.MemInfoPath, "MemTotal"); err == nil && v != "" {
		if n, err := parseMemInfoValue(v); err == nil {
			return n, nil
		}
	}

	if p.nativeMemory != nil {
		n, err := p.nativeMemory()
		if err == nil && n > 0 {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return 0, errors.New("no source reported total memory")
}

// byteOrder prefers lscpu and falls back to the byte order this binary was
// built for, which always matches the host it runs on.
func (p *HostProber) byteOrder(ctx context.Context) string {
	if p.Runner != nil {
		if out, err := p.Runner.Run(ctx, "lscpu"); err == nil {
			if v := fieldFromText(out, "Byte Order"); v != "" {
				return v
			}
		}
	}
	if p.bigEndian {
		return BigEndian
	}
	return LittleEndian
}

// fieldFromFile returns the value of the first "key : value" line in path.
func fieldFromFile(path, key string) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return fieldFromText(string(data), key), nil
}

func fieldFromText(text, key string) string {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == key {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// parseMemInfoValue parses "16318412 kB".
func parseMemInfoValue(v string) (uint64, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, err
	}
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "kb":
			n *= 1024
		case "mb":
			n *= 1024 * 1024
		}
	}
	return n, nil
}

// ProbeHost probes the host with a default HostProber and logs, rather than
// returns, any field it could not determine.
func ProbeHost(ctx context.Context, runner CommandRunner) types.HostInfo {
	info, err := NewHostProber(runner).Probe(ctx)
	if err != nil {
		logging.Get("probe").Warn("host probe incomplete", "error", err)
	}
	return info
}
