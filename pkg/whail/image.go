package whail

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/moby/client"
)

// PullOptions controls where pull progress is rendered.
type PullOptions struct {
	// Out receives rendered progress lines. Nil discards them.
	Out io.Writer
	// IsTerminal enables cursor-movement progress bars on Out.
	IsTerminal bool
}

// ImagePull pulls ref and blocks until the progress stream reaches its
// terminal event (EOF). An error message embedded in the stream is returned
// as an error even though the HTTP request itself succeeded.
func (e *Engine) ImagePull(ctx context.Context, ref string, opts PullOptions) (*PullProgress, error) {
	if e.puller == nil {
		return nil, ErrImagePullFailed(ref, errNoPuller)
	}
	reader, err := e.puller.ImagePull(ctx, ref, client.ImagePullOptions{})
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrImageNotFound(ref, err)
		}
		return nil, ErrImagePullFailed(ref, err)
	}
	defer reader.Close()

	progress, err := drainPullStream(ctx, reader, opts)
	if err != nil {
		return progress, ErrImagePullFailed(ref, err)
	}
	return progress, nil
}

// drainPullStream decodes the newline-delimited JSON progress stream until
// EOF, rendering each message to opts.Out.
func drainPullStream(ctx context.Context, r io.Reader, opts PullOptions) (*PullProgress, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	progress := newPullProgress()
	defer progress.finish()

	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return progress, err
		}
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return progress, nil
			}
			return progress, err
		}
		if msg.Error != nil {
			return progress, msg.Error
		}
		progress.observe(msg)
		if err := msg.Display(out, opts.IsTerminal); err != nil {
			return progress, err
		}
	}
}
