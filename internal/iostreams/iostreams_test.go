package iostreams

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonFileWritersAreNotTTY(t *testing.T) {
	s := &IOStreams{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}, isOutputTTY: -1, isStderrTTY: -1, colorEnabled: -1}

	assert.False(t, s.IsOutputTTY())
	assert.False(t, s.IsStderrTTY())
	assert.False(t, s.ColorEnabled())

	w, tty := s.ProgressOut()
	assert.Same(t, s.ErrOut, w)
	assert.False(t, tty)
}

func TestSetColorEnabled(t *testing.T) {
	s := &IOStreams{Out: &bytes.Buffer{}, isOutputTTY: -1, colorEnabled: -1}
	s.SetColorEnabled(true)
	assert.True(t, s.ColorEnabled())
	assert.True(t, s.ColorScheme().Enabled())

	s.SetColorEnabled(false)
	assert.False(t, s.ColorEnabled())
}

func TestColorSchemeFallbacks(t *testing.T) {
	cs := NewColorScheme(false)

	assert.Equal(t, "[ok]", cs.SuccessIcon())
	assert.Equal(t, "[error]", cs.FailureIcon())
	assert.Equal(t, "[warn]", cs.WarningIcon())
	assert.Equal(t, "[info]", cs.InfoIcon())
	assert.Equal(t, "plain", cs.Bold("plain"))
	assert.Equal(t, "n=3", cs.Boldf("n=%d", 3))
}

func TestColorSchemeEnabledKeepsText(t *testing.T) {
	cs := NewColorScheme(true)
	assert.Contains(t, cs.Red("boom"), "boom")
	assert.Contains(t, cs.SuccessIcon(), "✓")
}
