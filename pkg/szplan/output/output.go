// Package output renders szplan reports (host and device capabilities,
// resolved configurations, validation results) in various formats
// (pretty, plain, json, yaml, etc.).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/cache"
	"github.com/jamesainslie/szplan/pkg/szplan/resolve"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// Input describes the data a configuration was resolved for.
type Input struct {
	Dataset    string               `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Descriptor types.DataDescriptor `json:"descriptor" yaml:"descriptor"`
}

// Validation is the outcome of checking a configuration against one device.
type Validation struct {
	Device int      `json:"device" yaml:"device"`
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
	OK     bool     `json:"ok" yaml:"ok"`
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Dataset is one named dimension preset.
type Dataset struct {
	Name     string `json:"name" yaml:"name"`
	Dims     string `json:"dims" yaml:"dims"`
	Rank     string `json:"rank" yaml:"rank"`
	Elements uint64 `json:"elements" yaml:"elements"`
}

// CacheReport describes the capability snapshot cache.
type CacheReport struct {
	Path    string        `json:"path" yaml:"path"`
	Stats   cache.Stats   `json:"stats" yaml:"stats"`
	Entries []cache.Entry `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// Report is everything a command may print. Sections that are nil or empty
// are omitted by every formatter.
type Report struct {
	Host        *types.HostInfo    `json:"host,omitempty" yaml:"host,omitempty"`
	Runtime     string             `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Devices     []types.DeviceInfo `json:"devices,omitempty" yaml:"devices,omitempty"`
	DeviceError string             `json:"device_error,omitempty" yaml:"device_error,omitempty"`
	ProbedAt    time.Time          `json:"probed_at,omitzero" yaml:"probed_at,omitempty"`

	Input  *Input                       `json:"input,omitempty" yaml:"input,omitempty"`
	JobID  string                       `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	Config *types.ResolvedConfiguration `json:"config,omitempty" yaml:"config,omitempty"`
	Demand *resolve.Demand              `json:"demand,omitempty" yaml:"demand,omitempty"`

	Validation []Validation `json:"validation,omitempty" yaml:"validation,omitempty"`
	Datasets   []Dataset    `json:"datasets,omitempty" yaml:"datasets,omitempty"`
	Cache      *CacheReport `json:"cache,omitempty" yaml:"cache,omitempty"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// SetCapabilities copies a probe snapshot into the report.
func (r *Report) SetCapabilities(caps *types.Capabilities) {
	if caps == nil {
		return
	}
	host := caps.Host
	r.Host = &host
	r.Runtime = caps.Runtime
	r.Devices = caps.Devices
	r.DeviceError = caps.DeviceError
	r.ProbedAt = caps.ProbedAt
}

// Valid reports whether every validation passed. A report without
// validations is valid.
func (r *Report) Valid() bool {
	for _, v := range r.Validation {
		if !v.OK {
			return false
		}
	}
	return true
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
