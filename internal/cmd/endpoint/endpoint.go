package endpoint

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/iostreams"
)

// EndpointOptions holds options for the endpoint command.
type EndpointOptions struct {
	IOStreams *iostreams.IOStreams
	Config    func() (*config.Config, error)

	URL bool
}

// NewCmdEndpoint creates the endpoint command.
func NewCmdEndpoint(f *cmdutil.Factory, runF func(context.Context, *EndpointOptions) error) *cobra.Command {
	opts := &EndpointOptions{
		IOStreams: f.IOStreams,
		Config:    f.Config,
	}

	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Print the host:port of the published RPC port",
		Long: `Prints where RPC clients on this machine reach the daemon, computed from
the configured port bindings. The engine is not contacted.`,
		Example: `  # Point an RPC test suite at the container
  TRANSMISSION_RPC=$(torrentbed endpoint --url) go test ./rpc/...`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return endpointRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.URL, "url", false, "Print the Transmission RPC URL instead of host:port")

	return cmd
}

// rpcPath is where Transmission serves RPC.
const rpcPath = "/transmission/rpc"

func endpointRun(_ context.Context, opts *EndpointOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	addr, err := cfg.RPCEndpoint()
	if err != nil {
		return err
	}
	if opts.URL {
		addr = "http://" + addr + rpcPath
	}
	fmt.Fprintln(opts.IOStreams.Out, addr)
	return nil
}
