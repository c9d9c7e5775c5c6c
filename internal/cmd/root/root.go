package root

import (
	"github.com/spf13/cobra"

	addcmd "github.com/schmitthub/torrentbed/internal/cmd/add"
	configcmd "github.com/schmitthub/torrentbed/internal/cmd/config"
	downcmd "github.com/schmitthub/torrentbed/internal/cmd/down"
	endpointcmd "github.com/schmitthub/torrentbed/internal/cmd/endpoint"
	healthcmd "github.com/schmitthub/torrentbed/internal/cmd/health"
	upcmd "github.com/schmitthub/torrentbed/internal/cmd/up"
	versioncmd "github.com/schmitthub/torrentbed/internal/cmd/version"
	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/logger"
)

// NewCmdRoot creates the root command for the torrentbed CLI.
func NewCmdRoot(f *cmdutil.Factory, version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torrentbed",
		Short: "Run a disposable Transmission daemon for integration tests",
		Long: `torrentbed brings a single named Transmission container into a running,
health-checked state before a test run and removes it afterwards.

Quick start:
  torrentbed up          # create, start and wait for the container
  torrentbed endpoint    # where RPC tests should connect
  torrentbed down        # remove the container and its volumes

Configuration is read from ./torrentbed.yaml, a .env file and TORRENTBED_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations: map[string]string{
			"versionInfo": versioncmd.Format(version, commit),
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initializeLogger(f)

			logger.Debug().
				Str("version", f.Version).
				Str("run", f.RunID).
				Bool("debug", f.Debug).
				Msg("torrentbed starting")

			return nil
		},
		Version: f.Version,
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.ConfigFile, "config", "c", "", "Path to the configuration file (default ./torrentbed.yaml)")
	pf.BoolVarP(&f.Debug, "debug", "D", false, "Enable debug logging")
	pf.StringVar(&f.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cmdutil.FlagErrorWrap(err)
	})
	cmd.SetVersionTemplate(versioncmd.Format(version, commit))

	cmd.AddCommand(upcmd.NewCmdUp(f, nil))
	cmd.AddCommand(downcmd.NewCmdDown(f, nil))
	cmd.AddCommand(healthcmd.NewCmdHealth(f, nil))
	cmd.AddCommand(addcmd.NewCmdAdd(f, nil))
	cmd.AddCommand(endpointcmd.NewCmdEndpoint(f, nil))
	cmd.AddCommand(configcmd.NewCmdConfig(f, nil))
	cmd.AddCommand(versioncmd.NewCmdVersion(f))

	return cmd
}

// initializeLogger sets up the logger with file logging if possible.
// Falls back to console-only logging on any errors; a broken configuration
// is reported by the command itself.
func initializeLogger(f *cmdutil.Factory) {
	cfg, err := f.Config()
	if err != nil {
		logger.Init(f.Debug)
		return
	}

	logsDir, err := cfg.LogsDir()
	if err != nil {
		logger.Init(f.Debug)
		logger.Warn().Err(err).Msg("file logging unavailable: failed to get logs directory")
		return
	}

	if err := logger.InitWithFile(f.Debug, logsDir, cfg.LoggerConfig()); err != nil {
		logger.Init(f.Debug)
		logger.Warn().Err(err).Msg("file logging unavailable: failed to initialize file writer")
	}
}
