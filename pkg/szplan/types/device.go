package types

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Version is a driver or runtime version.
type Version struct {
	Major int `json:"major" yaml:"major"`
	Minor int `json:"minor" yaml:"minor"`
}

// IsZero reports whether the version is unknown.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}

// String returns "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// HostInfo describes the host machine. Fields the host probe could not
// determine are left at their zero value.
type HostInfo struct {
	CPUModel    string `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	LogicalCPUs int    `json:"logical_cpus,omitempty" yaml:"logical_cpus,omitempty"`
	TotalMemory uint64 `json:"total_memory,omitempty" yaml:"total_memory,omitempty"`
	ByteOrder   string `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
}

// DeviceInfo is the property block of one accelerator device.
type DeviceInfo struct {
	Index          int     `json:"index" yaml:"index"`
	Name           string  `json:"name" yaml:"name"`
	DriverVersion  Version `json:"driver_version" yaml:"driver_version"`
	RuntimeVersion Version `json:"runtime_version" yaml:"runtime_version"`
	ComputeMajor   int     `json:"compute_major" yaml:"compute_major"`
	ComputeMinor   int     `json:"compute_minor" yaml:"compute_minor"`

	// Memory sizes in bytes.
	GlobalMemory               uint64 `json:"global_memory" yaml:"global_memory"`
	ConstantMemory             uint64 `json:"constant_memory" yaml:"constant_memory"`
	SharedMemPerBlock          uint64 `json:"shared_mem_per_block" yaml:"shared_mem_per_block"`
	SharedMemPerMultiprocessor uint64 `json:"shared_mem_per_multiprocessor" yaml:"shared_mem_per_multiprocessor"`

	RegistersPerBlock int `json:"registers_per_block" yaml:"registers_per_block"`
}

// ComputeCapability returns the compute capability as "major.minor".
func (d DeviceInfo) ComputeCapability() string {
	return fmt.Sprintf("%d.%d", d.ComputeMajor, d.ComputeMinor)
}

// Capabilities is a snapshot of host and device resources taken by one probe.
type Capabilities struct {
	Host     HostInfo     `json:"host" yaml:"host"`
	Devices  []DeviceInfo `json:"devices" yaml:"devices"`
	Runtime  string       `json:"runtime" yaml:"runtime"`
	ProbedAt time.Time    `json:"probed_at" yaml:"probed_at"`

	// DeviceError records why device probing produced no devices, if it did not.
	DeviceError string `json:"device_error,omitempty" yaml:"device_error,omitempty"`
}

// Device returns the device with the given index.
func (c *Capabilities) Device(index int) (DeviceInfo, bool) {
	for _, d := range c.Devices {
		if d.Index == index {
			return d, true
		}
	}
	return DeviceInfo{}, false
}

// Clone returns a deep copy so callers can hold a snapshot without sharing
// the device slice.
func (c *Capabilities) Clone() *Capabilities {
	if c == nil {
		return nil
	}
	out := *c
	if c.Devices != nil {
		out.Devices = make([]DeviceInfo, len(c.Devices))
		copy(out.Devices, c.Devices)
	}
	return &out
}

// FormatBytes returns a size in binary (IEC) units, e.g. "16 GiB".
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}
