package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/metrics"
	"github.com/jamesainslie/szplan/pkg/szplan/output"
	"github.com/jamesainslie/szplan/pkg/szplan/probe"
	"github.com/jamesainslie/szplan/pkg/szplan/watcher"
)

var watchProbe probeFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-probe capabilities when accelerator devices change",
	Long: `Watch the device directories for accelerator nodes appearing or
disappearing (hot-plug, driver reload, device reset) and re-probe the
capabilities after each burst of changes. Every snapshot is printed.

With --metrics-addr the probe counters, the device gauge and the probe
latency histogram are served at /metrics.

Examples:
  szplan watch
  szplan watch -o jsonl --metrics-addr :9464`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	addProbeFlags(watchCmd, &watchProbe)
	addWatchFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

// serveMetrics serves m on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// renderSnapshot prints the current snapshot of pc.
func renderSnapshot(pc *probe.Context, took time.Duration) error {
	caps, ok := pc.Snapshot()
	if !ok {
		return nil
	}
	report := &output.Report{}
	report.SetCapabilities(caps)
	if len(caps.Devices) == 0 {
		report.Warnings = append(report.Warnings, "no accelerator device detected")
	}
	if took > 0 {
		report.Warnings = append(report.Warnings, "re-probed in "+elapsed(took))
	}
	return render(report)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := logging.Get("watcher")

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	pc, cleanup, err := capabilityContext(appCfg, watchProbe, m)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := capabilities(ctx, pc, watchProbe.refresh); err != nil {
		// Keep watching: a device may appear later.
		logger.Warn("initial probe failed", "error", err)
	}
	if err := renderSnapshot(pc, 0); err != nil {
		return err
	}

	w, err := watcher.New(
		watcher.WithPatterns(appCfg.Watch.Patterns...),
		watcher.WithDebounce(appCfg.Watch.Debounce),
	)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	for _, dir := range appCfg.Watch.Dirs {
		if err := w.Watch(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	if addr := appCfg.Watch.MetricsAddr; addr != "" {
		go func() {
			if err := serveMetrics(ctx, addr, m); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", addr, "error", err)
				cancel()
			}
		}()
		printInfo("Serving metrics on %s/metrics", addr)
	}

	printInfo("Watching %v for %v (Ctrl-C to stop)", w.Paths(), appCfg.Watch.Patterns)

	w.Run(ctx, func(ctx context.Context, events []watcher.Event) {
		logger.Info("device nodes changed", "events", len(events), "first", events[0].String())

		start := time.Now()
		if _, err := pc.Refresh(ctx); err != nil && !errors.Is(err, probe.ErrNoDeviceDetected) {
			logger.Warn("refresh failed", "error", err)
		}
		if err := renderSnapshot(pc, time.Since(start)); err != nil {
			logger.Error("render failed", "error", err)
		}
	})
	return nil
}
