package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/logger/loggertest"
)

type fakeEngine struct {
	execFn func(ctx context.Context, h engine.Handle, argv []string, out io.Writer) (engine.ExecResult, error)
	calls  int
}

func (f *fakeEngine) ExecInContainer(ctx context.Context, h engine.Handle, argv []string, out io.Writer) (engine.ExecResult, error) {
	f.calls++
	return f.execFn(ctx, h, argv, out)
}

func writing(output string, code int) *fakeEngine {
	return &fakeEngine{execFn: func(_ context.Context, _ engine.Handle, _ []string, out io.Writer) (engine.ExecResult, error) {
		_, _ = io.WriteString(out, output)
		return engine.ExecResult{ExitCode: code, Output: []byte(output)}, nil
	}}
}

var bound = engine.Handle{ID: "0123456789abcdef", Name: "svc"}

func TestExec_StreamsAndReportsExitCode(t *testing.T) {
	var live bytes.Buffer
	log := loggertest.New()
	x := New(writing("line one\nline two\npartial", 3), WithOutput(&live), WithLogger(log))

	res, err := x.Exec(context.Background(), bound, []string{"sh", "-c", "exit 3"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "line one\nline two\npartial", live.String())

	var lines []string
	for _, e := range log.Entries() {
		if e.Message() == "exec output" {
			lines = append(lines, e["line"].(string))
		}
	}
	assert.Equal(t, []string{"line one", "line two", "partial"}, lines)
	assert.True(t, log.HasMessage("debug", "exec finished"))
}

func TestExec_CallLevelErrors(t *testing.T) {
	fake := writing("", 0)
	x := New(fake)

	_, err := x.Exec(context.Background(), engine.Handle{}, []string{"true"})
	assert.ErrorIs(t, err, ErrUnsetHandle)

	_, err = x.Exec(context.Background(), bound, nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	assert.Zero(t, fake.calls)
}

func TestExec_SessionFailure(t *testing.T) {
	cause := errors.New("exec create refused")
	x := New(&fakeEngine{execFn: func(context.Context, engine.Handle, []string, io.Writer) (engine.ExecResult, error) {
		return engine.ExecResult{}, cause
	}})

	_, err := x.Exec(context.Background(), bound, []string{"bash", "/rpc_healthcheck.sh"})

	var sessionErr *ExecSessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"bash", "/rpc_healthcheck.sh"}, sessionErr.Argv)
	assert.Contains(t, err.Error(), `"bash /rpc_healthcheck.sh"`)
}

func TestExec_NonZeroExitIsNotAnError(t *testing.T) {
	x := New(writing("nope\n", 1))
	res, err := x.Exec(context.Background(), bound, []string{"false"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestLineLogger_CRLF(t *testing.T) {
	log := loggertest.New()
	l := &lineLogger{log: log, container: "c"}
	_, _ = l.Write([]byte("a\r\nb"))
	_, _ = l.Write([]byte("c\n"))
	l.flush()

	var lines []string
	for _, e := range log.Entries() {
		lines = append(lines, e["line"].(string))
	}
	assert.Equal(t, []string{"a", "bc"}, lines)
}
