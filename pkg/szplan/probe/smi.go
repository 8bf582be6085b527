package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// DefaultSMIPath is the nvidia-smi binary looked up on PATH.
const DefaultSMIPath = "nvidia-smi"

// smiQueryFields are requested in this order.
var smiQueryFields = []string{"index", "name", "memory.total", "compute_cap"}

// nvidia-smi exit codes that may clear on their own.
var smiTransientCodes = map[int]bool{
	10:  true, // interrupt issue with a GPU
	255: true, // unknown error
}

// archLimits are the per-architecture limits nvidia-smi does not report.
type archLimits struct {
	sharedPerBlock uint64
	sharedPerSM    uint64
	registers      int
}

const (
	kib             = 1024
	constantMemory  = 64 * kib
	staticSharedMem = 48 * kib
)

// computeLimits is keyed by compute capability (major*10 + minor).
var computeLimits = map[int]archLimits{
	30:  {staticSharedMem, 48 * kib, 65536},
	35:  {staticSharedMem, 48 * kib, 65536},
	37:  {staticSharedMem, 112 * kib, 65536},
	50:  {staticSharedMem, 64 * kib, 65536},
	52:  {staticSharedMem, 96 * kib, 65536},
	53:  {staticSharedMem, 64 * kib, 32768},
	60:  {staticSharedMem, 64 * kib, 65536},
	61:  {staticSharedMem, 96 * kib, 65536},
	62:  {staticSharedMem, 64 * kib, 32768},
	70:  {staticSharedMem, 96 * kib, 65536},
	72:  {staticSharedMem, 96 * kib, 65536},
	75:  {staticSharedMem, 64 * kib, 65536},
	80:  {staticSharedMem, 164 * kib, 65536},
	86:  {staticSharedMem, 100 * kib, 65536},
	87:  {staticSharedMem, 164 * kib, 65536},
	89:  {staticSharedMem, 100 * kib, 65536},
	90:  {staticSharedMem, 228 * kib, 65536},
	100: {staticSharedMem, 228 * kib, 65536},
	120: {staticSharedMem, 100 * kib, 65536},
}

var cudaVersionPattern = regexp.MustCompile(`CUDA Version:\s*(\d+)\.(\d+)`)

// SMIRuntime enumerates NVIDIA devices through nvidia-smi. A host without the
// binary has no devices. Limits nvidia-smi cannot report come from a table
// keyed by compute capability; capabilities missing from the table leave them
// zero, which fails validation.
type SMIRuntime struct {
	Runner CommandRunner
	Path   string

	mu   sync.Mutex
	rows []types.DeviceInfo
}

// NewSMIRuntime returns a runtime that invokes path through runner.
func NewSMIRuntime(runner CommandRunner, path string) *SMIRuntime {
	if path == "" {
		path = DefaultSMIPath
	}
	return &SMIRuntime{Runner: runner, Path: path}
}

func (s *SMIRuntime) Name() string { return "nvidia-smi" }

// DeviceCount runs the device query and caches the rows for Device.
func (s *SMIRuntime) DeviceCount(ctx context.Context) (int, error) {
	out, err := s.Runner.Run(ctx, s.Path,
		"--query-gpu="+strings.Join(smiQueryFields, ","),
		"--format=csv,noheader,nounits")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			s.store(nil)
			return 0, nil
		}
		return 0, s.runtimeError("device query", err)
	}

	rows, err := parseSMIRows(out)
	if err != nil {
		return 0, NewRuntimeError(s.Name(), "device query", -1, err.Error(), false)
	}
	s.store(rows)
	return len(rows), nil
}

func (s *SMIRuntime) Device(_ context.Context, i int) (types.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.rows) {
		return types.DeviceInfo{}, fmt.Errorf("%w: %d", ErrDeviceIndex, i)
	}
	return s.rows[i], nil
}

// Versions reads the driver API version from the nvidia-smi banner. The
// runtime version comes from nvcc when a toolkit is installed and is
// otherwise left zero.
func (s *SMIRuntime) Versions(ctx context.Context) (types.Version, types.Version, error) {
	out, err := s.Runner.Run(ctx, s.Path)
	if err != nil {
		return types.Version{}, types.Version{}, s.runtimeError("version query", err)
	}
	driver := parseCUDAVersion(out)

	var runtime types.Version
	if nv, err := s.Runner.Run(ctx, "nvcc", "--version"); err == nil {
		runtime = parseNVCCVersion(nv)
	}
	return driver, runtime, nil
}

func (s *SMIRuntime) store(rows []types.DeviceInfo) {
	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
}

func (s *SMIRuntime) runtimeError(op string, err error) *RuntimeError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		desc := exitErr.Stderr
		if desc == "" {
			desc = exitErr.Error()
		}
		return NewRuntimeError(s.Name(), op, exitErr.Code, desc, smiTransientCodes[exitErr.Code])
	}
	// Timeouts and other invocation failures may clear on retry.
	transient := errors.Is(err, context.DeadlineExceeded)
	return NewRuntimeError(s.Name(), op, -1, err.Error(), transient)
}

// parseSMIRows parses "index, name, memory MiB, major.minor" lines.
func parseSMIRows(out string) ([]types.DeviceInfo, error) {
	var rows []types.DeviceInfo
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != len(smiQueryFields) {
			return nil, fmt.Errorf("unexpected row %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", fields[0], err)
		}

		dev := types.DeviceInfo{Index: index, Name: fields[1]}
		if mib, err := strconv.ParseUint(fields[2], 10, 64); err == nil {
			dev.GlobalMemory = mib * kib * kib
		}
		if major, minor, ok := parseComputeCap(fields[3]); ok {
			dev.ComputeMajor, dev.ComputeMinor = major, minor
			applyLimits(&dev)
		}
		rows = append(rows, dev)
	}
	return rows, nil
}

func parseComputeCap(s string) (major, minor int, ok bool) {
	a, b, found := strings.Cut(s, ".")
	if !found {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(a)
	minor, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func applyLimits(dev *types.DeviceInfo) {
	l, ok := computeLimits[dev.ComputeMajor*10+dev.ComputeMinor]
	if !ok {
		logging.Get("probe").Warn("no limits known for compute capability",
			"device", dev.Index, "capability", dev.ComputeCapability())
		return
	}
	dev.ConstantMemory = constantMemory
	dev.SharedMemPerBlock = l.sharedPerBlock
	dev.SharedMemPerMultiprocessor = l.sharedPerSM
	dev.RegistersPerBlock = l.registers
}

func parseCUDAVersion(out string) types.Version {
	m := cudaVersionPattern.FindStringSubmatch(out)
	if m == nil {
		return types.Version{}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return types.Version{Major: major, Minor: minor}
}

var nvccReleasePattern = regexp.MustCompile(`release (\d+)\.(\d+)`)

func parseNVCCVersion(out string) types.Version {
	m := nvccReleasePattern.FindStringSubmatch(out)
	if m == nil {
		return types.Version{}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return types.Version{Major: major, Minor: minor}
}
