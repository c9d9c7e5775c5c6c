package version

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
)

// NewCmdVersion creates the version command. It prints the string the root
// command stores in its versionInfo annotation.
func NewCmdVersion(f *cmdutil.Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of torrentbed",
		Args:  cmdutil.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(f.IOStreams.Out, cmd.Root().Annotations["versionInfo"])
		},
	}
}

// Format renders version and an optional commit for display.
func Format(version, commit string) string {
	version = strings.TrimPrefix(version, "v")
	if commit == "" || commit == "none" {
		return fmt.Sprintf("torrentbed version %s\n", version)
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("torrentbed version %s (%s)\n", version, commit)
}
