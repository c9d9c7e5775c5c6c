package config

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	internalconfig "github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/iostreams"
)

// ConfigOptions holds options for the config command.
type ConfigOptions struct {
	IOStreams *iostreams.IOStreams
	Config    func() (*internalconfig.Config, error)

	ShowSecrets bool
}

// NewCmdConfig creates the config command.
func NewCmdConfig(f *cmdutil.Factory, runF func(context.Context, *ConfigOptions) error) *cobra.Command {
	opts := &ConfigOptions{
		IOStreams: f.IOStreams,
		Config:    f.Config,
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Prints the configuration torrentbed would use, after merging defaults,
the .env file, torrentbed.yaml and TORRENTBED_* environment variables.

Passwords are masked unless --show-secrets is given.`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return configRun(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowSecrets, "show-secrets", false, "Print passwords in clear text")

	return cmd
}

func configRun(opts *ConfigOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	out := cfg.Redacted()
	if opts.ShowSecrets {
		out = *cfg
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	_, err = opts.IOStreams.Out.Write(data)
	return err
}
