package add

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

// AddOptions holds options for the add command.
type AddOptions struct {
	IOStreams *iostreams.IOStreams
	Config    func() (*config.Config, error)
	Lifecycle func(context.Context) (cmdutil.Lifecycle, error)

	Source string
}

// NewCmdAdd creates the add command.
func NewCmdAdd(f *cmdutil.Factory, runF func(context.Context, *AddOptions) error) *cobra.Command {
	opts := &AddOptions{
		IOStreams: f.IOStreams,
		Config:    f.Config,
		Lifecycle: f.Lifecycle,
	}

	cmd := &cobra.Command{
		Use:   "add SOURCE",
		Short: "Add a torrent to the daemon in the test container",
		Long: `Runs transmission-remote inside the container to add SOURCE.

SOURCE is a magnet link, an http(s) URL or a path to a .torrent file as seen
from inside the container (for example under /watch).`,
		Example: `  # Add by URL
  torrentbed add https://releases.example.org/image.iso.torrent

  # Add a file mounted into the container
  torrentbed add /watch/fixture.torrent`,
		Args: cmdutil.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Source = args[0]
			if opts.Source == "" {
				return cmdutil.FlagErrorf("SOURCE must not be empty")
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return addRun(cmd.Context(), opts)
		},
	}

	return cmd
}

func addRun(ctx context.Context, opts *AddOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	lc, err := opts.Lifecycle(ctx)
	if err != nil {
		return err
	}
	if _, err := lc.Attach(ctx); err != nil {
		if errors.Is(err, lifecycle.ErrNotInitialized) {
			return fmt.Errorf("no container named %s; run 'torrentbed up' first", cfg.Container.Name)
		}
		return err
	}

	ok, err := lc.AddTorrent(ctx, opts.Source)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(ios.ErrOut, "%s transmission-remote rejected %s\n", cs.FailureIcon(), opts.Source)
		return &cmdutil.ExitError{Code: 1}
	}
	fmt.Fprintf(ios.ErrOut, "%s added %s\n", cs.SuccessIcon(), opts.Source)
	return nil
}
