package version

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/iostreams/iostreamstest"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "version only", version: "1.2.3", want: "torrentbed version 1.2.3\n"},
		{name: "leading v", version: "v1.2.3", want: "torrentbed version 1.2.3\n"},
		{name: "placeholder commit", version: "dev", commit: "none", want: "torrentbed version dev\n"},
		{name: "long commit", version: "1.2.3", commit: "0123456789abcdef", want: "torrentbed version 1.2.3 (0123456)\n"},
		{name: "short commit", version: "1.2.3", commit: "abc", want: "torrentbed version 1.2.3 (abc)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.version, tt.commit)
			if got != tt.want {
				t.Errorf("Format(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
			}
		})
	}
}

func TestNewCmdVersion(t *testing.T) {
	tio := iostreamstest.New()
	root := &cobra.Command{Use: "torrentbed", Annotations: map[string]string{"versionInfo": Format("1.0.0", "abc")}}
	root.AddCommand(NewCmdVersion(&cmdutil.Factory{IOStreams: tio.IOStreams}))
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if got := tio.OutBuf.String(); got != "torrentbed version 1.0.0 (abc)\n" {
		t.Errorf("unexpected output %q", got)
	}
}
