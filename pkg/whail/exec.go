package whail

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/client"
)

// execInspectAttempts bounds how often ExecRun re-inspects an exec whose
// output stream closed before the daemon recorded its exit code.
const (
	execInspectAttempts = 10
	execInspectDelay    = 50 * time.Millisecond
)

var errExecStillRunning = errors.New("exec still running after its output stream closed")

// ExecRun runs cmd inside containerID without a TTY, copying the
// demultiplexed output to stdout and stderr as it arrives. It returns the
// command's exit code once the output stream has closed.
//
// Any failure of the exec session itself (create, attach, stream or
// inspect) is returned as an error; a non-zero exit code is not an error.
func (e *Engine) ExecRun(ctx context.Context, containerID string, cmd []string, stdout, stderr io.Writer) (int, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	created, err := e.api.ExecCreate(ctx, containerID, client.ExecCreateOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return -1, ErrContainerExecFailed(containerID, err)
	}

	hijacked, err := e.api.ExecAttach(ctx, created.ID, client.ExecAttachOptions{TTY: false})
	if err != nil {
		return -1, ErrExecAttachFailed(created.ID, err)
	}
	defer hijacked.Close()

	// Close the connection when ctx is cancelled so StdCopy unblocks.
	stop := context.AfterFunc(ctx, func() { hijacked.Close() })
	defer stop()

	if _, err := stdcopy.StdCopy(stdout, stderr, hijacked.Reader); err != nil && !errors.Is(err, io.EOF) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, ErrExecAttachFailed(created.ID, ctxErr)
		}
		return -1, ErrExecAttachFailed(created.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return -1, ErrExecAttachFailed(created.ID, err)
	}

	for attempt := 1; ; attempt++ {
		inspected, err := e.api.ExecInspect(ctx, created.ID, client.ExecInspectOptions{})
		if err != nil {
			return -1, ErrExecInspectFailed(created.ID, err)
		}
		if !inspected.Running {
			return inspected.ExitCode, nil
		}
		if attempt >= execInspectAttempts {
			return -1, ErrExecInspectFailed(created.ID, errExecStillRunning)
		}
		select {
		case <-ctx.Done():
			return -1, ErrExecInspectFailed(created.ID, ctx.Err())
		case <-time.After(execInspectDelay):
		}
	}
}
