package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jamesainslie/szplan/pkg/szplan/config"
	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/output"
)

var (
	cfgFile string

	// v and appCfg are set by bootstrap before any command runs.
	v      *viper.Viper
	appCfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "szplan",
		Short: "Resolve compression configurations for accelerator devices",
		Long: `szplan picks the numeric representations and tiling of an error-bounded
compression job from a data descriptor, and checks the result against the
limits of the accelerators installed on this host.

Examples:
  szplan resolve --dataset nyx-s            # Resolve a configuration for a preset
  szplan resolve --dims 3600x1800 -o json   # Explicit dimensions, JSON output
  szplan probe                              # Show host and device capabilities
  szplan validate --dataset hurricane       # Check a configuration against every device
  szplan watch --metrics-addr :9464         # Re-probe on device hot-plug`,
		SilenceUsage:      true,
		PersistentPreRunE: bootstrap,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Close()
		},
	}
)

// flagKeys maps flag names to the configuration keys they override. A flag
// only overrides its key when the running command defines it.
var flagKeys = map[string]string{
	"verbose":               "verbose",
	"quiet":                 "quiet",
	"output":                "output",
	"template":              "template",
	"quant-width":           "resolve.quant_width",
	"err-ctrl":              "resolve.err_ctrl",
	"err-ctrl-width":        "resolve.err_ctrl_width",
	"entropy-width":         "resolve.entropy_width",
	"fast":                  "resolve.fast",
	"conservative-metadata": "resolve.conservative_metadata",
	"runtime":               "probe.runtime",
	"smi-path":              "probe.smi_path",
	"timeout":               "probe.timeout",
	"debounce":              "watch.debounce",
	"metrics-addr":          "watch.metrics_addr",
	"dir":                   "watch.dirs",
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/szplan/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().StringP("output", "o", "", fmt.Sprintf("output format: %v (default: pretty on a terminal, plain otherwise)", output.Available()))
	rootCmd.PersistentFlags().String("template", "", "Go template for -o template")
}

// bootstrap loads the configuration, applies flag overrides and starts
// logging.
func bootstrap(cmd *cobra.Command, _ []string) error {
	var err error
	if v, err = config.New(cfgFile); err != nil {
		return err
	}
	bindFlags(v, cmd.Flags())

	if appCfg, err = config.Decode(v); err != nil {
		return err
	}
	return initializeLogging(appCfg)
}

// bindFlags binds every flag of flags that has a configuration key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// initializeLogging starts file logging and, unless quiet, warnings on
// stderr. --verbose lowers both to debug.
func initializeLogging(cfg *config.Config) error {
	lc, err := cfg.Logging.LoggingConfig()
	if err != nil {
		return err
	}

	switch {
	case getQuiet():
		lc.ConsoleLevel = ""
	case getVerbose():
		lc.Level = "debug"
		lc.ConsoleLevel = "debug"
	default:
		lc.ConsoleLevel = "warn"
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return v != nil && v.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return v != nil && v.GetBool("quiet")
}

// printInfo prints a message to stderr if quiet mode is not enabled. Reports
// go to stdout, so progress messages never mix with machine-readable output.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// outputFormat returns the requested format, or pretty on a terminal and
// plain otherwise.
func outputFormat() string {
	if v != nil {
		if f := v.GetString("output"); f != "" {
			return f
		}
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return "pretty"
	}
	return "plain"
}

// selectFormatter returns the formatter for name. A template format without
// --template uses the built-in field listing.
func selectFormatter(name, tmpl string) (output.Formatter, error) {
	if name == "template" && tmpl != "" {
		return output.NewTemplateFormatter(tmpl), nil
	}
	f, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return f, nil
}

// render writes r to stdout in the selected format.
func render(r *output.Report) error {
	tmpl := ""
	if v != nil {
		tmpl = v.GetString("template")
	}
	formatter, err := selectFormatter(outputFormat(), tmpl)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}
