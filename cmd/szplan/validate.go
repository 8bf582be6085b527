package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/szplan/pkg/szplan/output"
	"github.com/jamesainslie/szplan/pkg/szplan/probe"
	"github.com/jamesainslie/szplan/pkg/szplan/resolve"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

var (
	validateIn     inputFlags
	validateProbe  probeFlags
	validateDevice int
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a resolved configuration against the accelerators",
	Long: `Resolve a configuration and check its modeled shared memory, register and
global memory demand against the limits of each accelerator device.

The command exits non-zero when the configuration does not fit a device,
or when there is no device to check against.

Examples:
  szplan validate --dataset nyx-m --width 8
  szplan validate --dims 4096x4096 --device 1`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	addInputFlags(validateCmd, &validateIn)
	addProbeFlags(validateCmd, &validateProbe)
	validateCmd.Flags().IntVar(&validateDevice, "device", -1, "check only this device index (-1 checks all)")
	rootCmd.AddCommand(validateCmd)
}

// validateDevices checks cfg against devs and returns one result per device.
func validateDevices(r *resolve.Resolver, cfg types.ResolvedConfiguration, devs []types.DeviceInfo) []output.Validation {
	results := make([]output.Validation, 0, len(devs))
	for _, dev := range devs {
		v := output.Validation{Device: dev.Index, Name: dev.Name, OK: true}
		if err := r.Validate(cfg, dev); err != nil {
			v.OK = false
			v.Errors = errorMessages(err)
		}
		results = append(results, v)
	}
	return results
}

// errorMessages splits a joined error into its messages.
func errorMessages(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	r := resolve.New()
	report, job, err := resolveJob(r, validateIn)
	if err != nil {
		return err
	}

	pc, cleanup, err := capabilityContext(appCfg, validateProbe, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	caps, err := capabilities(cmd.Context(), pc, validateProbe.refresh)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	report.SetCapabilities(caps)

	devs := caps.Devices
	if validateDevice >= 0 {
		dev, err := pc.Device(validateDevice)
		if err != nil {
			return err
		}
		devs = []types.DeviceInfo{dev}
	}

	report.Validation = validateDevices(r, job.Config, devs)
	if len(devs) == 0 {
		report.Warnings = append(report.Warnings, "no accelerator device detected; nothing to validate against")
	}
	if err := render(report); err != nil {
		return err
	}

	switch {
	case len(devs) == 0:
		return probe.ErrNoDeviceDetected
	case !report.Valid():
		return resolve.ErrConfigurationExceedsDeviceLimits
	}
	return nil
}
