package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/cache"
	"github.com/jamesainslie/szplan/pkg/szplan/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the capability cache",
	Long: `Commands for managing the capability snapshot cache.

The cache stores probed host and device capabilities so repeated commands
do not re-run nvidia-smi. Cache data is stored in the XDG cache directory
(typically ~/.cache/szplan/capabilities).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached snapshots",
	Long:  `Removes every cached snapshot. The next command probes the devices again.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cachePath := appCfg.Cache.CachePath()

		// Check if cache exists
		if _, err := os.Stat(cachePath); os.IsNotExist(err) {
			printInfo("Cache is already empty.")
			return nil
		}

		c, err := cache.Open(cachePath)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		n, err := c.Clear()
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		printInfo("Cleared %d snapshot(s).", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Displays the cache location, its size on disk and every cached snapshot.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := cacheReport(appCfg.Cache.CachePath())
		if err != nil {
			return err
		}
		return render(report)
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Long:  `Prints the path to the cache directory.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appCfg.Cache.CachePath())
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheReport describes the cache at path. A missing cache is reported as
// empty without creating it.
func cacheReport(path string) (*output.Report, error) {
	report := &output.Report{Cache: &output.CacheReport{Path: path}}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return report, nil
	}

	c, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	if report.Cache.Stats, err = c.Stats(); err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	if report.Cache.Entries, err = c.Entries(); err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	return report, nil
}
