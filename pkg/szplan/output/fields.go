package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// Field is one labelled value of a report section.
type Field struct {
	Section string
	Key     string
	Value   string
}

// Section names, in print order.
const (
	SectionHost       = "host"
	SectionDevices    = "devices"
	SectionInput      = "input"
	SectionConfig     = "config"
	SectionDemand     = "demand"
	SectionValidation = "validation"
	SectionDatasets   = "datasets"
	SectionCache      = "cache"
	SectionWarnings   = "warnings"
)

// fieldBuilder skips empty values so unavailable fields are never printed.
type fieldBuilder struct {
	section string
	fields  []Field
}

func (b *fieldBuilder) add(key, value string) {
	if value == "" {
		return
	}
	b.fields = append(b.fields, Field{Section: b.section, Key: key, Value: value})
}

func (b *fieldBuilder) bytes(key string, n uint64) {
	if n > 0 {
		b.add(key, humanize.IBytes(n))
	}
}

func (b *fieldBuilder) count(key string, n int) {
	if n > 0 {
		b.add(key, strconv.Itoa(n))
	}
}

func (b *fieldBuilder) version(key string, v types.Version) {
	if !v.IsZero() {
		b.add(key, v.String())
	}
}

func (b *fieldBuilder) numeric(key string, t types.NumericType) {
	if t.Width > 0 {
		b.add(key, fmt.Sprintf("%s (%d B)", t.Name, t.Width))
	}
}

// Fields flattens a report into labelled values in print order.
func Fields(r *Report) []Field {
	b := &fieldBuilder{}

	if r.Host != nil {
		b.section = SectionHost
		b.add("cpu_model", r.Host.CPUModel)
		b.count("logical_cpus", r.Host.LogicalCPUs)
		b.bytes("total_memory", r.Host.TotalMemory)
		b.add("byte_order", r.Host.ByteOrder)
	}

	b.section = SectionDevices
	b.add("runtime", r.Runtime)
	if !r.ProbedAt.IsZero() {
		b.add("probed_at", r.ProbedAt.Format(time.RFC3339))
	}
	b.add("error", r.DeviceError)
	for _, d := range r.Devices {
		p := fmt.Sprintf("device%d.", d.Index)
		b.add(p+"name", d.Name)
		if d.ComputeMajor > 0 {
			b.add(p+"compute_capability", d.ComputeCapability())
		}
		b.version(p+"driver", d.DriverVersion)
		b.version(p+"runtime", d.RuntimeVersion)
		b.bytes(p+"global_memory", d.GlobalMemory)
		b.bytes(p+"constant_memory", d.ConstantMemory)
		b.bytes(p+"shared_mem_per_block", d.SharedMemPerBlock)
		b.bytes(p+"shared_mem_per_sm", d.SharedMemPerMultiprocessor)
		b.count(p+"registers_per_block", d.RegistersPerBlock)
	}

	if r.Input != nil {
		b.section = SectionInput
		d := r.Input.Descriptor
		b.add("dataset", r.Input.Dataset)
		b.add("rank", d.Rank.String())
		b.add("dims", dimsString(d.Dims))
		kind := "float"
		if !d.FloatingPoint {
			kind = "integer"
		}
		b.add("element", fmt.Sprintf("%s (%d B)", kind, d.ElementWidth))
		if d.ExpectedSparsity > 0 {
			b.add("sparsity", strconv.FormatFloat(d.ExpectedSparsity, 'g', -1, 64))
		}
	}

	if r.Config != nil {
		c := r.Config
		b.section = SectionConfig
		b.add("job_id", r.JobID)
		b.numeric("data", c.Data)
		b.numeric("quant_code", c.QuantCode)
		b.numeric("err_ctrl", c.ErrCtrl)
		b.numeric("entropy_code", c.EntropyCode)
		b.numeric("reducer", c.Reducer)
		b.numeric("metadata", c.Metadata)
		b.numeric("fast_path", c.FastPath)
		b.add("tiling", tilingString(c.Tiling))
		if c.ElementCount > 0 {
			b.add("elements", humanize.Comma(int64(min(c.ElementCount, 1<<63-1))))
		}
		if c.LargeInput {
			b.add("large_input", "true")
		}
	}

	if r.Demand != nil {
		d := r.Demand
		b.section = SectionDemand
		b.count("tile_elements", d.TileElements)
		b.count("threads_per_block", d.ThreadsPerBlock)
		b.count("elements_per_thread", d.ElementsPerThread)
		b.bytes("shared_mem_per_block", d.SharedMemPerBlock)
		if d.RegistersPerBlock > 0 {
			b.add("registers_per_block", strconv.FormatUint(d.RegistersPerBlock, 10))
		}
		b.bytes("global_memory", d.GlobalMemory)
	}

	b.section = SectionValidation
	for _, v := range r.Validation {
		key := fmt.Sprintf("device%d", v.Device)
		if v.OK {
			b.add(key, "ok")
			continue
		}
		b.add(key, "exceeds limits")
		for _, e := range v.Errors {
			b.add(key+".error", e)
		}
	}

	b.section = SectionDatasets
	for _, d := range r.Datasets {
		b.add(d.Name, fmt.Sprintf("%s (rank %s, %s elements)", d.Dims, d.Rank, humanize.Comma(int64(d.Elements))))
	}

	if r.Cache != nil {
		b.section = SectionCache
		b.add("path", r.Cache.Path)
		b.add("entries", strconv.Itoa(r.Cache.Stats.Entries))
		b.bytes("size", uint64(r.Cache.Stats.LSMBytes+r.Cache.Stats.LogBytes))
		for _, e := range r.Cache.Entries {
			b.add(e.Key, fmt.Sprintf("%d device(s), probed %s", e.Devices, humanize.Time(e.ProbedAt)))
		}
	}

	b.section = SectionWarnings
	for i, w := range r.Warnings {
		b.add(strconv.Itoa(i+1), w)
	}

	return b.fields
}

func dimsString(dims [4]uint64) string {
	n := len(dims)
	for n > 1 && dims[n-1] == 1 {
		n--
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.FormatUint(dims[i], 10)
	}
	return strings.Join(parts, "x")
}

func tilingString(t types.Tiling) string {
	if t.ChunkBlock == 0 {
		return ""
	}
	s := fmt.Sprintf("rank %s, block %d", t.Rank, t.ChunkBlock)
	if t.ChunkSeq > 0 {
		s += fmt.Sprintf(", seq %d", t.ChunkSeq)
	}
	if t.YSeq > 0 {
		s += fmt.Sprintf(", yseq %d", t.YSeq)
	}
	return s
}
