package root

import (
	"errors"
	"testing"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/cmdutil/cmdutiltest"
	"github.com/schmitthub/torrentbed/internal/iostreams/iostreamstest"
)

func TestNewCmdRoot(t *testing.T) {
	f := &cmdutil.Factory{Version: "1.0.0", IOStreams: iostreamstest.New().IOStreams}
	cmd := NewCmdRoot(f, "1.0.0", "abc123")

	if cmd.Use != "torrentbed" {
		t.Errorf("expected Use 'torrentbed', got '%s'", cmd.Use)
	}
	if cmd.Version != "1.0.0" {
		t.Errorf("expected Version '1.0.0', got '%s'", cmd.Version)
	}

	expectedCmds := map[string]bool{
		"up":       false,
		"down":     false,
		"health":   false,
		"add":      false,
		"endpoint": false,
		"config":   false,
		"version":  false,
	}
	for _, sub := range cmd.Commands() {
		if _, ok := expectedCmds[sub.Name()]; ok {
			expectedCmds[sub.Name()] = true
		}
	}
	for name, found := range expectedCmds {
		if !found {
			t.Errorf("expected subcommand '%s' to be registered", name)
		}
	}
}

func TestNewCmdRoot_GlobalFlags(t *testing.T) {
	f := &cmdutil.Factory{IOStreams: iostreamstest.New().IOStreams}
	cmd := NewCmdRoot(f, "1.0.0", "")

	for _, name := range []string{"config", "debug", "metrics-file"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected --%s persistent flag", name)
		}
	}
	if cmd.PersistentFlags().ShorthandLookup("D") == nil {
		t.Error("expected -D shorthand for --debug")
	}
}

func TestNewCmdRoot_FlagsBindToFactory(t *testing.T) {
	f, tio := cmdutiltest.NewFactory(t, &cmdutiltest.FakeLifecycle{})
	cmd := NewCmdRoot(f, "1.0.0", "abc")
	cmd.SetArgs([]string{"--debug", "--metrics-file", "/tmp/torrentbed.prom", "version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !f.Debug {
		t.Error("expected --debug to set Factory.Debug")
	}
	if f.MetricsFile != "/tmp/torrentbed.prom" {
		t.Errorf("expected metrics file to be bound, got %q", f.MetricsFile)
	}
	if got := tio.OutBuf.String(); got != "torrentbed version 1.0.0 (abc)\n" {
		t.Errorf("unexpected version output %q", got)
	}
}

func TestNewCmdRoot_UnknownFlagIsFlagError(t *testing.T) {
	f, _ := cmdutiltest.NewFactory(t, &cmdutiltest.FakeLifecycle{})
	cmd := NewCmdRoot(f, "1.0.0", "")
	cmd.SetArgs([]string{"up", "--bogus"})

	err := cmd.Execute()
	var flagErr *cmdutil.FlagError
	if !errors.As(err, &flagErr) {
		t.Fatalf("expected *cmdutil.FlagError, got %T: %v", err, err)
	}
}
