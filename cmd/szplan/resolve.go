package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/output"
	"github.com/jamesainslie/szplan/pkg/szplan/resolve"
)

var resolveIn inputFlags

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the representations and tiling for a descriptor",
	Long: `Resolve the data, quantization, error-control, entropy, metadata and reducer
types and the tiling for one compression job, and show the resources the
resulting kernels need.

The descriptor comes from a dataset preset (--dataset) or explicit
dimensions (--dims). Request options default to the resolve section of the
configuration file.

Examples:
  szplan resolve --dataset nyx-s
  szplan resolve --dims 3600x1800 --width 8 --quant-width 4
  szplan resolve --dataset hacc --rank 0x101 -o json`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	addInputFlags(resolveCmd, &resolveIn)
	rootCmd.AddCommand(resolveCmd)
}

// resolveJob resolves the flags' descriptor with the configured request.
func resolveJob(r *resolve.Resolver, in inputFlags) (*output.Report, *resolve.Job, error) {
	input, err := in.input()
	if err != nil {
		return nil, nil, err
	}
	req, err := appCfg.Resolve.Request()
	if err != nil {
		return nil, nil, err
	}

	job, err := r.NewJob(input.Descriptor, req)
	if err != nil {
		if errors.Is(err, resolve.ErrSparsityExceeded) {
			printInfo("hint: dense outlier storage handles this sparsity")
		}
		return nil, nil, err
	}

	demand, err := resolve.ComputeDemand(job.Config)
	if err != nil {
		return nil, nil, err
	}

	report := &output.Report{
		Input:  &input,
		JobID:  job.ID.String(),
		Config: &job.Config,
		Demand: &demand,
	}
	return report, job, nil
}

func runResolve(_ *cobra.Command, _ []string) error {
	report, _, err := resolveJob(resolve.New(), resolveIn)
	if err != nil {
		return err
	}
	return render(report)
}
