package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/oshokin/mediamtx-installer/internal/config"
	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
	"github.com/oshokin/mediamtx-installer/internal/service/installer"
	"github.com/oshokin/mediamtx-installer/internal/version"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "MEDIAMTX_INSTALLER_"

var (
	// settingsPath to the installer settings YAML file.
	settingsPath string
	// overrides collects flag and environment values.
	overrides config.Overrides
	// logLevel is the minimum level of console and file logs.
	logLevel string
	// debug enables debug logging regardless of logLevel.
	debug bool
	// assumeYes answers every confirmation with yes.
	assumeYes bool
	// metricsFile receives Prometheus textfile metrics.
	metricsFile string

	// rootCmd installs or upgrades the media server.
	rootCmd = &cobra.Command{
		Use:   "mediamtx-installer",
		Short: "Install MediaMTX as a hardened service, rolling back every change on failure",
		Long: "Downloads a MediaMTX release, verifies it against the published checksum manifest, installs the " +
			"binary, writes its configuration and service unit, and starts the service. Any failure restores the " +
			"host to its previous state.",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: prepare,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &installer.Options{
				SettingsPath: settingsPath,
				Overrides:    overrides,
				AssumeYes:    assumeYes,
				MetricsFile:  metricsFile,
				Output:       cmd.OutOrStdout(),
			}

			return installer.Run(ctx, options)
		},
	}
)

// Execute runs the CLI and exits with the status matching the failure kind.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	printError(err)
	os.Exit(install.ExitCode(err))
}

// prepare applies environment overrides and the log level before any subcommand runs.
func prepare(cmd *cobra.Command, _ []string) error {
	applyEnv(cmd.Flags(), map[string]*string{
		"version":     &overrides.Version,
		"log-file":    &overrides.LogFile,
		"log-level":   &logLevel,
		"config-file": &overrides.ConfigFile,
	})

	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return install.Errorf(install.KindConfig, "unknown log level %q", logLevel)
	}

	if debug {
		level = zapcore.DebugLevel
	}

	logger.SetLevel(level)

	return nil
}

// applyEnv fills every flag the user did not set from MEDIAMTX_INSTALLER_<FLAG>.
func applyEnv(flags *pflag.FlagSet, targets map[string]*string) {
	for name, target := range targets {
		if flag := flags.Lookup(name); flag == nil || flag.Changed {
			continue
		}

		key := envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
}

// printError writes the fatal error line, in red on a terminal.
func printError(err error) {
	line := "ERROR: " + err.Error()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		line = "\x1b[31m" + line + "\x1b[0m"
	}

	_, _ = fmt.Fprintln(os.Stderr, line)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&settingsPath, "settings", "s", config.DefaultConfigFilename, "path to installer settings file")
	persistent.StringVar(&overrides.ConfigFile, "config-file", "", "media server configuration path (env "+envPrefix+"CONFIG_FILE)")
	persistent.StringVar(&overrides.LogFile, "log-file", "", "installer run log path (env "+envPrefix+"LOG_FILE)")
	persistent.BoolVar(&overrides.DryRun, "dry-run", false, "report intended changes without applying them")
	persistent.BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every confirmation")
	persistent.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error (env "+envPrefix+"LOG_LEVEL)")
	persistent.BoolVar(&debug, "debug", false, "shorthand for --log-level debug")

	flags := rootCmd.Flags()
	flags.StringVar(&overrides.Version, "version", "", "release to install, e.g. v1.12.2 (env "+envPrefix+"VERSION)")
	flags.StringVar(&overrides.Arch, "arch", "", "release architecture override: amd64, arm64, armv7 or armv6")
	flags.BoolVar(&overrides.Force, "force", false, "treat an existing installation as an upgrade without asking")
	flags.BoolVar(&overrides.RequireChecksum, "require-checksum", false, "fail when the artifact cannot be verified")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus textfile metrics of the run to this path")

	rootCmd.AddCommand(checksumCmd, uninstallCmd)
}
