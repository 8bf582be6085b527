//go:build linux

package probe

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// totalMemory asks the kernel directly when /proc is not mounted.
func totalMemory() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// cpuModel has no syscall equivalent on linux; /proc/cpuinfo is the source.
func cpuModel() (string, error) {
	return "", errors.New("cpu model requires /proc/cpuinfo")
}
