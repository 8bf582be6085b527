package resolve

import (
	"errors"
	"math"
	"math/bits"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// baseRegistersPerThread is the modeled register cost of a kernel thread before
// it holds any data (indices, loop state, addresses).
const baseRegistersPerThread = 32

// Demand is the modeled per-launch resource use of a configuration.
type Demand struct {
	// TileElements is the number of data elements one block stages.
	TileElements int `json:"tile_elements" yaml:"tile_elements"`
	// ThreadsPerBlock is the launch block size.
	ThreadsPerBlock int `json:"threads_per_block" yaml:"threads_per_block"`
	// ElementsPerThread is the sequential work of one thread.
	ElementsPerThread int `json:"elements_per_thread" yaml:"elements_per_thread"`

	SharedMemPerBlock uint64 `json:"shared_mem_per_block" yaml:"shared_mem_per_block"`
	RegistersPerBlock uint64 `json:"registers_per_block" yaml:"registers_per_block"`
	GlobalMemory      uint64 `json:"global_memory" yaml:"global_memory"`
}

// ComputeDemand models the resources cfg needs. Shared memory holds one tile of
// data, quantization codes and error-control values; registers scale with
// the data each thread keeps in flight; global memory holds the input and its
// quantization codes.
func ComputeDemand(cfg types.ResolvedConfiguration) (Demand, error) {
	t, ok := chunkingTraits[cfg.Tiling.Rank]
	if !ok || t != cfg.Tiling {
		return Demand{}, unsupported("tiling", cfg.Tiling, "tiling is not a table row")
	}

	var d Demand
	switch t.Rank {
	case types.Rank1:
		d.TileElements = t.ChunkBlock
		d.ElementsPerThread = t.ChunkSeq
	case types.Rank1Narrow, types.Rank1Narrower:
		d.TileElements = t.ChunkBlock
		d.ElementsPerThread = 1
	case types.Rank2:
		d.TileElements = t.ChunkBlock * t.ChunkBlock
		d.ElementsPerThread = t.YSeq
	case types.Rank3:
		d.TileElements = t.ChunkBlock * t.ChunkBlock * t.ChunkBlock
		d.ElementsPerThread = t.YSeq
	}
	d.ThreadsPerBlock = d.TileElements / d.ElementsPerThread

	perElement := uint64(cfg.Data.Width + cfg.QuantCode.Width + cfg.ErrCtrl.Width)
	d.SharedMemPerBlock = uint64(d.TileElements) * perElement

	words := (cfg.Data.Width + 3) / 4
	d.RegistersPerBlock = uint64(d.ThreadsPerBlock) * uint64(baseRegistersPerThread+d.ElementsPerThread*words)

	hi, lo := bits.Mul64(cfg.ElementCount, uint64(cfg.Data.Width+cfg.QuantCode.Width))
	if hi != 0 {
		lo = math.MaxUint64
	}
	d.GlobalMemory = lo

	return d, nil
}

// Validate checks cfg against dev before anything is launched. Every exceeded
// resource is reported; the returned error matches
// ErrConfigurationExceedsDeviceLimits and each *LimitError via errors.As.
// A limit the device reported as zero counts as exceeded.
func Validate(cfg types.ResolvedConfiguration, dev types.DeviceInfo) error {
	d, err := ComputeDemand(cfg)
	if err != nil {
		return err
	}

	checks := []struct {
		resource  string
		required  uint64
		available uint64
	}{
		{"shared memory per block", d.SharedMemPerBlock, dev.SharedMemPerBlock},
		{"registers per block", d.RegistersPerBlock, uint64(max(dev.RegistersPerBlock, 0))},
		{"global memory", d.GlobalMemory, dev.GlobalMemory},
	}

	var errs []error
	for _, c := range checks {
		if c.required > c.available {
			errs = append(errs, &LimitError{
				Device:    dev.Index,
				Resource:  c.resource,
				Required:  c.required,
				Available: c.available,
			})
		}
	}
	return errors.Join(errs...)
}
