package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/config"
	internalhealth "github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
)

// HealthOptions holds options for the health command.
type HealthOptions struct {
	IOStreams *iostreams.IOStreams
	Config    func() (*config.Config, error)
	Lifecycle func(context.Context) (cmdutil.Lifecycle, error)

	Wait    bool
	Timeout time.Duration
}

// NewCmdHealth creates the health command.
func NewCmdHealth(f *cmdutil.Factory, runF func(context.Context, *HealthOptions) error) *cobra.Command {
	opts := &HealthOptions{
		IOStreams: f.IOStreams,
		Config:    f.Config,
		Lifecycle: f.Lifecycle,
	}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run the readiness command in the test container",
		Long: `Runs the configured readiness command inside the running container.

Exits 0 when the container is healthy and 1 when it is not. With --wait the
command is retried until it succeeds or the timeout passes.`,
		Example: `  # Probe once
  torrentbed health

  # Wait up to a minute
  torrentbed health --wait --timeout 1m`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Timeout != 0 && !opts.Wait {
				return cmdutil.FlagErrorf("--timeout requires --wait")
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return healthRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Wait, "wait", "w", false, "Poll until the container is healthy")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "How long --wait polls (default from config, 30s)")

	return cmd
}

func healthRun(ctx context.Context, opts *HealthOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	name := cfg.Container.Name

	lc, err := opts.Lifecycle(ctx)
	if err != nil {
		return err
	}
	if _, err := lc.Attach(ctx); err != nil {
		if errors.Is(err, lifecycle.ErrNotInitialized) {
			fmt.Fprintf(ios.ErrOut, "%s no container named %s\n", cs.FailureIcon(), name)
			return &cmdutil.ExitError{Code: 1}
		}
		return err
	}

	var res internalhealth.Result
	if opts.Wait {
		policy := cfg.HealthPolicy()
		if opts.Timeout > 0 {
			policy.Timeout = opts.Timeout
		}
		res, err = lc.WaitHealthy(ctx, policy)
		var timeout *internalhealth.TimeoutError
		if errors.As(err, &timeout) {
			fmt.Fprintf(ios.ErrOut, "%s %s: %s\n", cs.FailureIcon(), name, timeout.Error())
			return &cmdutil.ExitError{Code: 1}
		}
	} else {
		res, err = lc.Healthcheck(ctx)
	}
	if err != nil {
		return err
	}

	if !res.Healthy {
		fmt.Fprintf(ios.ErrOut, "%s %s unhealthy: %s\n", cs.FailureIcon(), name, res.Detail)
		return &cmdutil.ExitError{Code: 1}
	}
	fmt.Fprintf(ios.Out, "%s %s healthy\n", cs.SuccessIcon(), name)
	return nil
}
