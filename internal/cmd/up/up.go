package up

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
)

// UpOptions holds options for the up command.
type UpOptions struct {
	IOStreams *iostreams.IOStreams
	Config    func() (*config.Config, error)
	Lifecycle func(context.Context) (cmdutil.Lifecycle, error)
	Lock      func(context.Context) (*cmdutil.LifecycleLock, error)

	NoWait   bool
	Timeout  time.Duration
	Interval time.Duration
}

// NewCmdUp creates the up command.
func NewCmdUp(f *cmdutil.Factory, runF func(context.Context, *UpOptions) error) *cobra.Command {
	opts := &UpOptions{
		IOStreams: f.IOStreams,
		Config:    f.Config,
		Lifecycle: f.Lifecycle,
		Lock:      f.Lock,
	}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create, start and health-check the test container",
		Long: `Brings the configured container to a running, healthy state.

A container left behind under the same name is removed and recreated, and a
missing image is pulled once. The command returns after the readiness
command succeeds inside the container, unless --no-wait is given.`,
		Example: `  # Start the container and wait up to 30s for it to become healthy
  torrentbed up

  # Allow a slow first start
  torrentbed up --timeout 2m --interval 5s

  # Start without waiting for the readiness command
  torrentbed up --no-wait`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Timeout < 0 || opts.Interval < 0 {
				return cmdutil.FlagErrorf("--timeout and --interval must not be negative")
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return upRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "Return once the container is started, without waiting for it to become healthy")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "How long to wait for the container to become healthy (default from config, 30s)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Delay between readiness probes (default from config, 2s)")

	return cmd
}

func upRun(ctx context.Context, opts *UpOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	policy := cfg.HealthPolicy()
	if opts.Timeout > 0 {
		policy.Timeout = opts.Timeout
	}
	if opts.Interval > 0 {
		policy.Interval = opts.Interval
	}

	lock, err := opts.Lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	lc, err := opts.Lifecycle(ctx)
	if err != nil {
		return err
	}

	var out lifecycle.Outcome
	if opts.NoWait {
		out, err = lc.Reconcile(ctx)
	} else {
		out, err = lc.InitializeWithPolicy(ctx, policy)
	}
	logSteps(ios.Logger, out)
	if err != nil {
		fmt.Fprintf(ios.ErrOut, "%s %s: %s\n", cs.FailureIcon(), cfg.Container.Name, cmdutil.UserMessage(err))
		return cmdutil.SilentError
	}

	fmt.Fprintf(ios.Out, "%s %s %s (%s)\n", cs.SuccessIcon(), out.Handle.Name, describe(out), out.Handle.ShortID())
	if opts.NoWait {
		fmt.Fprintf(ios.ErrOut, "%s readiness not checked; run 'torrentbed health --wait'\n", cs.WarningIcon())
	}

	endpoint, err := lc.Endpoint()
	if err != nil {
		ios.Logger.Warn().Err(err).Msg("rpc endpoint unavailable")
		return nil
	}
	fmt.Fprintf(ios.Out, "RPC endpoint: %s\n", endpoint)
	return nil
}

func describe(out lifecycle.Outcome) string {
	switch out.Kind {
	case lifecycle.OutcomeRecoveredFromConflict:
		msg := "recreated after removing the previous container"
		if out.ExistingID != "" {
			msg = "recreated after removing " + (engine.Handle{ID: out.ExistingID}).ShortID()
		}
		if out.Pulled() {
			msg += " and pulling the image"
		}
		return msg
	case lifecycle.OutcomeRecoveredFromMissingImage:
		return "created after pulling the image"
	default:
		return "created"
	}
}

func logSteps(log iostreams.Logger, out lifecycle.Outcome) {
	for _, s := range out.Steps {
		ev := log.Debug().Str("stage", string(s.Stage)).Str("target", s.Target).Dur("duration", s.Duration)
		if s.Err != nil {
			ev = ev.Err(s.Err)
		}
		ev.Msg("lifecycle step")
	}
}
