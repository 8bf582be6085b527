//go:build darwin

package probe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// totalMemory reads hw.memsize.
func totalMemory() (uint64, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	return memsize, nil
}

func cpuModel() (string, error) {
	model, err := unix.Sysctl("machdep.cpu.brand_string")
	if err != nil {
		return "", fmt.Errorf("sysctl machdep.cpu.brand_string: %w", err)
	}
	return model, nil
}
