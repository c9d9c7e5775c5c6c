package down

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
)

// DownOptions holds options for the down command.
type DownOptions struct {
	IOStreams *iostreams.IOStreams
	Config    func() (*config.Config, error)
	Lifecycle func(context.Context) (cmdutil.Lifecycle, error)
	Lock      func(context.Context) (*cmdutil.LifecycleLock, error)

	IgnoreMissing bool
}

// NewCmdDown creates the down command.
func NewCmdDown(f *cmdutil.Factory, runF func(context.Context, *DownOptions) error) *cobra.Command {
	opts := &DownOptions{
		IOStreams: f.IOStreams,
		Config:    f.Config,
		Lifecycle: f.Lifecycle,
		Lock:      f.Lock,
	}

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Force-remove the test container and its anonymous volumes",
		Example: `  # Tear down after a test run
  torrentbed down

  # Succeed even when nothing is running
  torrentbed down --ignore-missing`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return downRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.IgnoreMissing, "ignore-missing", false, "Do not fail when no container exists")

	return cmd
}

func downRun(ctx context.Context, opts *DownOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	name := cfg.Container.Name

	lock, err := opts.Lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	lc, err := opts.Lifecycle(ctx)
	if err != nil {
		return err
	}

	h, err := lc.Attach(ctx)
	if errors.Is(err, lifecycle.ErrNotInitialized) {
		if opts.IgnoreMissing {
			fmt.Fprintf(ios.ErrOut, "%s no container named %s\n", cs.InfoIcon(), name)
			return nil
		}
		fmt.Fprintf(ios.ErrOut, "%s no container named %s\n", cs.FailureIcon(), name)
		return cmdutil.SilentError
	}
	if err != nil {
		return err
	}

	if err := lc.Wipeout(ctx); err != nil {
		fmt.Fprintf(ios.ErrOut, "%s %s: %s\n", cs.FailureIcon(), name, cmdutil.UserMessage(err))
		return cmdutil.SilentError
	}
	fmt.Fprintf(ios.Out, "%s %s removed (%s)\n", cs.SuccessIcon(), name, h.ShortID())
	return nil
}
