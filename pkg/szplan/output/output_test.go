package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/szplan/pkg/szplan/resolve"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// sampleReport is a full resolve-and-validate report for nyx-s on one A100.
func sampleReport(t *testing.T) *Report {
	t.Helper()

	desc := types.NewDescriptor(4, types.Rank3, 512, 512, 512)
	cfg, err := resolve.Resolve(desc, types.DefaultRequest())
	require.NoError(t, err)
	demand, err := resolve.ComputeDemand(cfg)
	require.NoError(t, err)

	r := &Report{
		Input:      &Input{Dataset: "nyx-s", Descriptor: desc},
		JobID:      "6f1c1a8e-2f5e-4c43-9a57-0e4f3c1b2d10",
		Config:     &cfg,
		Demand:     &demand,
		Validation: []Validation{{Device: 0, Name: "NVIDIA A100-SXM4-40GB", OK: true}},
	}
	r.SetCapabilities(&types.Capabilities{
		Host: types.HostInfo{
			CPUModel:    "AMD EPYC 7763 64-Core Processor",
			LogicalCPUs: 128,
			TotalMemory: 512 << 30,
			ByteOrder:   "Little Endian",
		},
		Runtime: "nvidia-smi",
		Devices: []types.DeviceInfo{{
			Index:             0,
			Name:              "NVIDIA A100-SXM4-40GB",
			DriverVersion:     types.Version{Major: 12, Minor: 2},
			ComputeMajor:      8,
			GlobalMemory:      40 << 30,
			SharedMemPerBlock: 48 << 10,
			RegistersPerBlock: 65536,
		}},
		ProbedAt: time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC),
	})
	return r
}

func fieldMap(fields []Field) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Section+"."+f.Key] = f.Value
	}
	return m
}

func TestFields(t *testing.T) {
	m := fieldMap(Fields(sampleReport(t)))

	assert.Equal(t, "AMD EPYC 7763 64-Core Processor", m["host.cpu_model"])
	assert.Equal(t, "512 GiB", m["host.total_memory"])
	assert.Equal(t, "128", m["host.logical_cpus"])
	assert.Equal(t, "nvidia-smi", m["devices.runtime"])
	assert.Equal(t, "12.2", m["devices.device0.driver"])
	assert.Equal(t, "8.0", m["devices.device0.compute_capability"])
	assert.Equal(t, "40 GiB", m["devices.device0.global_memory"])
	assert.Equal(t, "512x512x512", m["input.dims"])
	assert.Equal(t, "float32 (4 B)", m["config.data"])
	assert.Equal(t, "uint16 (2 B)", m["config.quant_code"])
	assert.Equal(t, "rank 3, block 8, yseq 8", m["config.tiling"])
	assert.Equal(t, "134,217,728", m["config.elements"])
	assert.Equal(t, "ok", m["validation.device0"])
	assert.Equal(t, "512", m["demand.tile_elements"])
}

func TestFields_OmitsUnavailable(t *testing.T) {
	m := fieldMap(Fields(sampleReport(t)))

	_, ok := m["devices.device0.runtime"]
	assert.False(t, ok, "zero runtime version is omitted")
	_, ok = m["devices.device0.constant_memory"]
	assert.False(t, ok, "unreported constant memory is omitted")
	_, ok = m["config.large_input"]
	assert.False(t, ok)
	_, ok = m["input.sparsity"]
	assert.False(t, ok)

	assert.Empty(t, Fields(&Report{}))
	assert.Empty(t, Fields(&Report{Host: &types.HostInfo{}}))
}

func TestFields_Order(t *testing.T) {
	var sections []string
	for _, g := range groupBySection(Fields(sampleReport(t))) {
		sections = append(sections, g[0].Section)
	}
	assert.Equal(t, []string{
		SectionHost, SectionDevices, SectionInput, SectionConfig, SectionDemand, SectionValidation,
	}, sections)
}

func TestFields_FailedValidation(t *testing.T) {
	r := &Report{Validation: []Validation{
		{Device: 1, OK: false, Errors: []string{"shared memory per block: requires 2560, device 1 has 100"}},
	}}

	fields := Fields(r)
	require.Len(t, fields, 2)
	assert.Equal(t, "exceeds limits", fields[0].Value)
	assert.Equal(t, "device1.error", fields[1].Key)
	assert.False(t, r.Valid())
	assert.True(t, (&Report{}).Valid())
}

func TestSetCapabilitiesNil(t *testing.T) {
	r := &Report{}
	r.SetCapabilities(nil)
	assert.Nil(t, r.Host)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", func() Formatter { return &PlainFormatter{} })
	reg.Register("a", func() Formatter { return &JSONFormatter{} })

	assert.Equal(t, []string{"a", "b"}, reg.Available())

	f, err := reg.Get("a")
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	_, err = reg.Get("missing")
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Equal(t, []string{
		"csv", "json", "jsonl", "markdown", "plain", "pretty", "template", "tsv", "yaml",
	}, Available())

	for _, name := range Available() {
		t.Run(name, func(t *testing.T) {
			f, err := Get(name)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, f.Format(&buf, sampleReport(t)))
			assert.NotEmpty(t, buf.String())
		})
	}
}
