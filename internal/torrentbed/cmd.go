package torrentbed

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmd/factory"
	"github.com/schmitthub/torrentbed/internal/cmd/root"
	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/logger"
	"github.com/schmitthub/torrentbed/internal/signals"
)

// Build-time variables injected via ldflags
var (
	Version = "dev"
	Commit  = "none"
)

const (
	exitOk          = 0
	exitError       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// Main is the entry point for the torrentbed CLI.
// It initializes the Factory, creates the root command, and executes it.
func Main() int {
	// Ensure logs are flushed on exit
	defer logger.CloseFileWriter()

	f := factory.New(Version, Commit)
	rootCmd := root.NewCmdRoot(f, Version, Commit)

	ctx, cancel := signals.SetupSignalContext(context.Background())
	defer cancel()

	cmd, err := rootCmd.ExecuteContextC(ctx)

	writeMetrics(f)
	f.CloseClient()

	return exitCode(ctx, f.IOStreams, cmd, err)
}

// exitCode reports err to the user and maps it to a process status.
func exitCode(ctx context.Context, ios *iostreams.IOStreams, cmd *cobra.Command, err error) int {
	if err == nil {
		return exitOk
	}

	var exitErr *cmdutil.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, cmdutil.SilentError) {
		return exitError
	}

	cs := ios.ColorScheme()

	var interrupted *signals.InterruptedError
	if errors.As(context.Cause(ctx), &interrupted) {
		fmt.Fprintf(ios.ErrOut, "%s %s\n", cs.WarningIcon(), interrupted.Error())
		return exitInterrupted
	}

	var flagErr *cmdutil.FlagError
	if errors.As(err, &flagErr) {
		fmt.Fprintln(ios.ErrOut, err)
		if cmd != nil {
			fmt.Fprintln(ios.ErrOut)
			fmt.Fprint(ios.ErrOut, cmd.UsageString())
		}
		return exitUsage
	}

	fmt.Fprintf(ios.ErrOut, "%s %s\n", cs.FailureIcon(), cmdutil.UserMessage(err))
	return exitError
}

// writeMetrics exports metrics to --metrics-file, falling back to
// metrics.file from the configuration.
func writeMetrics(f *cmdutil.Factory) {
	path := f.MetricsFile
	if path == "" {
		if cfg, err := f.Config(); err == nil {
			path = cfg.Metrics.File
		}
	}
	if path == "" {
		return
	}
	if err := f.Metrics.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write metrics")
	}
}
