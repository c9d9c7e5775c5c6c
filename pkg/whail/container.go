package whail

import (
	"context"
	"strings"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// ContainerCreate creates a container with the managed labels applied.
// Returns the new container ID. Failures come back as *DockerError wrapping
// the engine error so errdefs classification still works on the chain.
func (e *Engine) ContainerCreate(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	if cfg == nil {
		cfg = &container.Config{}
	}
	cfgCopy := *cfg
	cfgCopy.Labels = e.containerLabels(cfg.Labels)

	resp, err := e.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:       name,
		Config:     &cfgCopy,
		HostConfig: hostCfg,
	})
	if err != nil {
		return "", ErrContainerCreateFailed(name, err)
	}
	return resp.ID, nil
}

// ContainerStart starts a created container.
func (e *Engine) ContainerStart(ctx context.Context, containerID string) error {
	if _, err := e.api.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return ErrContainerStartFailed(containerID, err)
	}
	return nil
}

// ContainerRemove removes a container. It does not check the managed label:
// the reconciler may need to clear a foreign container squatting on the name.
func (e *Engine) ContainerRemove(ctx context.Context, containerID string, force bool) error {
	_, err := e.api.ContainerRemove(ctx, containerID, client.ContainerRemoveOptions{
		Force:         force,
		RemoveVolumes: true,
	})
	if err != nil {
		return ErrContainerRemoveFailed(containerID, err)
	}
	return nil
}

// FindContainerByName returns the container whose name is exactly name,
// running or not. found is false when no such container exists.
func (e *Engine) FindContainerByName(ctx context.Context, name string) (summary container.Summary, found bool, err error) {
	resp, err := e.api.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: NameFilter(name),
	})
	if err != nil {
		return container.Summary{}, false, ErrContainerListFailed(err)
	}

	// The name filter matches substrings; compare exactly.
	want := "/" + strings.TrimPrefix(name, "/")
	for _, c := range resp.Items {
		for _, n := range c.Names {
			if n == want {
				return c, true, nil
			}
		}
	}
	return container.Summary{}, false, nil
}
