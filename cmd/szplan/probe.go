package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/cache"
	"github.com/jamesainslie/szplan/pkg/szplan/config"
	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/metrics"
	"github.com/jamesainslie/szplan/pkg/szplan/output"
	"github.com/jamesainslie/szplan/pkg/szplan/probe"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

var probeOpts probeFlags

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show host and accelerator capabilities",
	Long: `Probe the host (CPU model, memory, byte order) and every accelerator
device (compute capability, memory and per-block limits).

Snapshots are cached for cache.ttl so repeated invocations are fast; use
--refresh to probe anyway or --no-cache to bypass the cache entirely.
Having no accelerator is not an error: the host section is still reported.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	addProbeFlags(probeCmd, &probeOpts)
	rootCmd.AddCommand(probeCmd)
}

// capabilityContext assembles a probe.Context from the configuration. The
// returned cleanup closes the context and the cache.
func capabilityContext(cfg *config.Config, p probeFlags, m *metrics.Metrics) (*probe.Context, func(), error) {
	runner := probe.ExecRunner{Timeout: cfg.Probe.Timeout}
	rt, err := probe.SelectRuntime(cfg.Probe.Runtime, runner, cfg.Probe.SMIPath)
	if err != nil {
		return nil, nil, err
	}

	opts := []probe.Option{
		probe.WithRuntime(rt),
		probe.WithHostProber(probe.NewHostProber(runner)),
		probe.WithMetrics(m),
	}

	var store *cache.Cache
	if cfg.Cache.Enabled && !p.noCache {
		store, err = cache.Open(cfg.Cache.CachePath())
		if err != nil {
			// A second szplan holding the cache lock must not stop a probe.
			logging.Get("cache").Warn("capability cache unavailable", "path", cfg.Cache.CachePath(), "error", err)
			store = nil
		} else {
			store.SetRetention(cfg.Cache.Retention)
			opts = append(opts, probe.WithStore(store, cfg.Cache.TTL))
		}
	}

	pc := probe.NewContext(opts...)
	cleanup := func() {
		_ = pc.Close()
		if store != nil {
			_ = store.Close()
		}
	}
	return pc, cleanup, nil
}

// capabilities returns a snapshot, probing when refresh is set or no fresh
// snapshot is cached. Having no device is reported in the snapshot and is
// not an error.
func capabilities(ctx context.Context, pc *probe.Context, refresh bool) (*types.Capabilities, error) {
	var (
		caps *types.Capabilities
		err  error
	)
	if refresh {
		caps, err = pc.Refresh(ctx)
	} else {
		caps, err = pc.Init(ctx)
	}
	if errors.Is(err, probe.ErrNoDeviceDetected) {
		return caps, nil
	}
	return caps, err
}

func runProbe(cmd *cobra.Command, _ []string) error {
	pc, cleanup, err := capabilityContext(appCfg, probeOpts, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	caps, err := capabilities(cmd.Context(), pc, probeOpts.refresh)
	if caps == nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	report := &output.Report{}
	report.SetCapabilities(caps)
	if len(caps.Devices) == 0 {
		report.Warnings = append(report.Warnings, "no accelerator device detected")
	}
	if rerr := render(report); rerr != nil {
		return rerr
	}
	return err
}
