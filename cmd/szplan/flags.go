package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/config"
	"github.com/jamesainslie/szplan/pkg/szplan/datasets"
	"github.com/jamesainslie/szplan/pkg/szplan/output"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// inputFlags describe the data a configuration is resolved for.
type inputFlags struct {
	dataset  string
	dims     string
	rank     string
	width    int
	sparsity float64
	integer  bool
}

// addInputFlags registers the descriptor and request flags on cmd.
func addInputFlags(cmd *cobra.Command, in *inputFlags) {
	f := cmd.Flags()
	f.StringVarP(&in.dataset, "dataset", "d", "", "named dataset preset (see 'szplan datasets')")
	f.StringVar(&in.dims, "dims", "", "dimensions, fastest-varying first (e.g. 512x512x512)")
	f.StringVar(&in.rank, "rank", "", "rank key: 1, 2, 3, 0x101 (1-narrow) or 0x201 (1-narrower); default follows the shape")
	f.IntVarP(&in.width, "width", "w", 4, "element width in bytes (4 or 8)")
	f.Float64Var(&in.sparsity, "sparsity", 0, "expected fraction of outlier elements")
	f.BoolVar(&in.integer, "integer", false, "elements are integers rather than floats")
	cmd.MarkFlagsMutuallyExclusive("dataset", "dims")
	cmd.MarkFlagsOneRequired("dataset", "dims")

	// Request flags override the resolve section of the configuration.
	f.Int("quant-width", config.DefaultQuantWidth, "quantization code width in bytes (1, 2 or 4)")
	f.String("err-ctrl", config.DefaultErrCtrl, "error-control coding: float or integer")
	f.Int("err-ctrl-width", 0, "error-control width in bytes (0 derives it)")
	f.Int("entropy-width", 0, "entropy code width in bytes: 4 or 8 (0 derives it)")
	f.Bool("fast", false, "use the single-precision fast path")
	f.Bool("conservative-metadata", false, "always use 8-byte metadata and reducer types")
}

// input builds the descriptor named by the flags.
func (in *inputFlags) input() (output.Input, error) {
	var (
		dims datasets.Dims
		err  error
	)
	switch {
	case in.dataset != "":
		dims, err = datasets.Lookup(in.dataset)
	case in.dims != "":
		dims, err = datasets.ParseDims(in.dims)
	default:
		err = fmt.Errorf("one of --dataset or --dims is required")
	}
	if err != nil {
		return output.Input{}, err
	}

	var rank types.RankKey
	if in.rank != "" {
		rank, err = types.ParseRankKey(in.rank)
	} else {
		rank, err = dims.RankKey()
	}
	if err != nil {
		return output.Input{}, err
	}

	desc := types.NewDescriptor(in.width, rank, dims[:]...)
	desc.FloatingPoint = !in.integer
	desc.ExpectedSparsity = in.sparsity

	return output.Input{Dataset: in.dataset, Descriptor: desc}, nil
}

// probeFlags select the accelerator runtime and the snapshot cache.
type probeFlags struct {
	noCache bool
	refresh bool
}

// addProbeFlags registers the probe flags on cmd.
func addProbeFlags(cmd *cobra.Command, p *probeFlags) {
	f := cmd.Flags()
	f.String("runtime", config.DefaultProbeRuntime, "accelerator runtime: auto, smi or none")
	f.String("smi-path", config.DefaultSMIPath, "nvidia-smi binary")
	f.Duration("timeout", config.DefaultProbeTimeout, "timeout of each external command")
	f.BoolVar(&p.noCache, "no-cache", false, "neither read nor write the capability cache")
	f.BoolVar(&p.refresh, "refresh", false, "probe even when a fresh cached snapshot exists")
}

// addWatchFlags registers the watch flags on cmd.
func addWatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("dir", config.DefaultWatchDirs, "directories watched for device nodes")
	f.Duration("debounce", config.DefaultWatchDebounce, "quiet period before a change triggers a probe")
	f.String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9464)")
}

// elapsed formats a duration the way reports print it.
func elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
