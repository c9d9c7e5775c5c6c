package whail

import (
	"context"
	"io"

	"github.com/moby/moby/client"
)

// APIClient is the subset of the moby client that Engine drives.
// *client.Client satisfies it; tests substitute whailtest.FakeAPIClient.
type APIClient interface {
	Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error)

	ContainerCreate(ctx context.Context, options client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	ContainerStart(ctx context.Context, container string, options client.ContainerStartOptions) (client.ContainerStartResult, error)
	ContainerRemove(ctx context.Context, container string, options client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	ContainerList(ctx context.Context, options client.ContainerListOptions) (client.ContainerListResult, error)

	ExecCreate(ctx context.Context, container string, options client.ExecCreateOptions) (client.ExecCreateResult, error)
	ExecAttach(ctx context.Context, execID string, options client.ExecAttachOptions) (client.ExecAttachResult, error)
	ExecInspect(ctx context.Context, execID string, options client.ExecInspectOptions) (client.ExecInspectResult, error)

	Close() error
}

// ImagePuller opens an image pull progress stream.
//
// It is kept apart from APIClient so the stream can be handled as a plain
// io.ReadCloser regardless of the richer response type the SDK returns.
type ImagePuller interface {
	ImagePull(ctx context.Context, ref string, options client.ImagePullOptions) (io.ReadCloser, error)
}

// mobyPuller adapts *client.Client to ImagePuller.
type mobyPuller struct {
	cli *client.Client
}

func (p mobyPuller) ImagePull(ctx context.Context, ref string, options client.ImagePullOptions) (io.ReadCloser, error) {
	resp, err := p.cli.ImagePull(ctx, ref, options)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
