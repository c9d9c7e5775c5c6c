package up

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/shlex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/cmdutil/cmdutiltest"
	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/iostreams/iostreamstest"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
)

const testID = "4f6c2a0e9b1d7c3a5e8f0b2d4c6a8e1f3b5d7c9a0e2f4b6d8c1a3e5f7b9d0c2a"

func TestNewCmdUp(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		output     UpOptions
		wantErr    bool
		wantErrMsg string
	}{
		{
			name:   "defaults",
			output: UpOptions{},
		},
		{
			name:   "no wait",
			input:  "--no-wait",
			output: UpOptions{NoWait: true},
		},
		{
			name:   "timeout and interval",
			input:  "--timeout 2m --interval 500ms",
			output: UpOptions{Timeout: 2 * time.Minute, Interval: 500 * time.Millisecond},
		},
		{
			name:       "negative timeout",
			input:      "--timeout -1s",
			wantErr:    true,
			wantErrMsg: "must not be negative",
		},
		{
			name:       "positional argument",
			input:      "extra",
			wantErr:    true,
			wantErrMsg: "accepts no arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &cmdutil.Factory{IOStreams: iostreamstest.New().IOStreams}

			var gotOpts *UpOptions
			cmd := NewCmdUp(f, func(_ context.Context, opts *UpOptions) error {
				gotOpts = opts
				return nil
			})

			argv, err := shlex.Split(tt.input)
			require.NoError(t, err)
			cmd.SetArgs(append([]string{}, argv...))
			cmd.SetIn(&bytes.Buffer{})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			_, err = cmd.ExecuteC()
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErrMsg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, gotOpts)
			assert.Equal(t, tt.output.NoWait, gotOpts.NoWait)
			assert.Equal(t, tt.output.Timeout, gotOpts.Timeout)
			assert.Equal(t, tt.output.Interval, gotOpts.Interval)
		})
	}
}

func runUp(t *testing.T, fake *cmdutiltest.FakeLifecycle, args ...string) (*iostreamstest.TestIOStreams, error) {
	t.Helper()
	f, tio := cmdutiltest.NewFactory(t, fake)
	cmd := NewCmdUp(f, nil)
	cmd.SetArgs(append([]string{}, args...))
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetOut(tio.OutBuf)
	cmd.SetErr(tio.ErrBuf)
	_, err := cmd.ExecuteC()
	return tio, err
}

func TestUpRun_Created(t *testing.T) {
	var gotPolicy health.Policy
	fake := &cmdutiltest.FakeLifecycle{
		InitializeWithPolicyFn: func(_ context.Context, p health.Policy) (lifecycle.Outcome, error) {
			gotPolicy = p
			return lifecycle.Outcome{
				Kind:   lifecycle.OutcomeCreated,
				Handle: engine.Handle{ID: testID, Name: "transmission-promise-testing"},
			}, nil
		},
		EndpointFn: func() (string, error) { return "localhost:9091", nil },
	}

	tio, err := runUp(t, fake, "--timeout", "45s")
	require.NoError(t, err)

	assert.Equal(t, health.Policy{Interval: health.DefaultInterval, Timeout: 45 * time.Second}, gotPolicy)
	assert.Contains(t, tio.OutBuf.String(), "transmission-promise-testing created (4f6c2a0e9b1d)")
	assert.Contains(t, tio.OutBuf.String(), "RPC endpoint: localhost:9091")
	assert.Equal(t, []string{"InitializeWithPolicy", "Endpoint"}, fake.CallNames())
}

func TestUpRun_NoWaitSkipsHealth(t *testing.T) {
	fake := &cmdutiltest.FakeLifecycle{
		ReconcileFn: func(context.Context) (lifecycle.Outcome, error) {
			return lifecycle.Outcome{Kind: lifecycle.OutcomeCreated, Handle: engine.Handle{ID: testID, Name: "svc"}}, nil
		},
	}

	tio, err := runUp(t, fake, "--no-wait")
	require.NoError(t, err)

	assert.Equal(t, []string{"Reconcile", "Endpoint"}, fake.CallNames())
	assert.Contains(t, tio.ErrBuf.String(), "readiness not checked")
}

func TestUpRun_Failure(t *testing.T) {
	fake := &cmdutiltest.FakeLifecycle{
		InitializeWithPolicyFn: func(context.Context, health.Policy) (lifecycle.Outcome, error) {
			err := &lifecycle.StageError{Stage: lifecycle.StageStart, Err: errors.New("port is already allocated")}
			return lifecycle.Outcome{Kind: lifecycle.OutcomeFailed, Err: err}, err
		},
	}

	tio, err := runUp(t, fake)
	require.ErrorIs(t, err, cmdutil.SilentError)
	assert.Contains(t, tio.ErrBuf.String(), "transmission-promise-testing: start: port is already allocated")
	assert.Empty(t, tio.OutBuf.String())
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		out  lifecycle.Outcome
		want string
	}{
		{"created", lifecycle.Outcome{Kind: lifecycle.OutcomeCreated}, "created"},
		{"pulled", lifecycle.Outcome{Kind: lifecycle.OutcomeRecoveredFromMissingImage}, "created after pulling the image"},
		{"conflict", lifecycle.Outcome{Kind: lifecycle.OutcomeRecoveredFromConflict, ExistingID: testID}, "recreated after removing 4f6c2a0e9b1d"},
		{"conflict unknown id", lifecycle.Outcome{Kind: lifecycle.OutcomeRecoveredFromConflict}, "recreated after removing the previous container"},
		{
			"conflict and pull",
			lifecycle.Outcome{
				Kind:       lifecycle.OutcomeRecoveredFromConflict,
				ExistingID: testID,
				Steps:      []lifecycle.Step{{Stage: lifecycle.StagePull}},
			},
			"recreated after removing 4f6c2a0e9b1d and pulling the image",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.out))
		})
	}
}
