package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/schmitthub/torrentbed/internal/cmdutil/cmdutiltest"
	internalconfig "github.com/schmitthub/torrentbed/internal/config"
)

func TestConfigRun_PrintsEffectiveYAML(t *testing.T) {
	f, tio := cmdutiltest.NewFactory(t, &cmdutiltest.FakeLifecycle{})
	cfg, err := f.Config()
	require.NoError(t, err)
	cfg.RPC.Password = "hunter2"

	cmd := NewCmdConfig(f, nil)
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	var got internalconfig.Config
	require.NoError(t, yaml.Unmarshal([]byte(tio.OutBuf.String()), &got))
	assert.Equal(t, internalconfig.DefaultContainerName, got.Container.Name)
	assert.Equal(t, internalconfig.DefaultImage, got.Container.Image)
	assert.Equal(t, cfg.Health.Timeout, got.Health.Timeout)
	assert.Equal(t, "********", got.RPC.Password)
	assert.NotContains(t, tio.OutBuf.String(), "hunter2")
}

func TestConfigRun_ShowSecrets(t *testing.T) {
	f, tio := cmdutiltest.NewFactory(t, &cmdutiltest.FakeLifecycle{})
	cfg, err := f.Config()
	require.NoError(t, err)
	cfg.RPC.Password = "hunter2"

	cmd := NewCmdConfig(f, nil)
	cmd.SetArgs([]string{"--show-secrets"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, tio.OutBuf.String(), "password: hunter2")
}
