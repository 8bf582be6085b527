package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/datasets"
	"github.com/jamesainslie/szplan/pkg/szplan/output"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the named dataset presets",
	Long:  `List the dataset presets accepted by --dataset with their dimensions and rank.`,
	Args:  cobra.NoArgs,
	RunE:  runDatasets,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

// datasetReport lists every preset.
func datasetReport() (*output.Report, error) {
	report := &output.Report{}
	for _, name := range datasets.Names() {
		dims, err := datasets.Lookup(name)
		if err != nil {
			return nil, err
		}
		rank := ""
		if rk, err := dims.RankKey(); err == nil {
			rank = rk.String()
		}
		report.Datasets = append(report.Datasets, output.Dataset{
			Name:     name,
			Dims:     dims.String(),
			Rank:     rank,
			Elements: dims.Count(),
		})
	}
	return report, nil
}

func runDatasets(_ *cobra.Command, _ []string) error {
	report, err := datasetReport()
	if err != nil {
		return err
	}
	return render(report)
}
