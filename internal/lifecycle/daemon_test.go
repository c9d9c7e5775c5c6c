package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/logger/loggertest"
	"github.com/schmitthub/torrentbed/pkg/whail"
	"github.com/schmitthub/torrentbed/pkg/whail/whailtest"
)

// fakeDaemon backs a whailtest.FakeAPIClient with just enough engine state
// (containers by name, local images) to exercise the engine's error-driven
// semantics end to end.
type fakeDaemon struct {
	*whailtest.FakeAPIClient

	mu         sync.Mutex
	containers map[string]container.Summary // by name
	images     map[string]bool
	nextID     int

	managedKey string
	healthExit int // exit code of every exec
	execOutput string

	startErr error
	pullErr  error
	// pullKeepsImageMissing makes a successful pull leave the image absent.
	pullKeepsImageMissing bool
	// alwaysConflict reports a conflict with ghostID on every create, as
	// if another process kept recreating the container.
	alwaysConflict bool
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, *engine.Client) {
	t.Helper()
	fake := whailtest.NewFakeAPIClient()
	eng := whail.NewFromClient(fake, fake, engine.EngineOptions(engine.Options{RunID: "run-test"}))
	cli := engine.New(eng)

	d := &fakeDaemon{
		FakeAPIClient: fake,
		containers:    map[string]container.Summary{},
		images:        map[string]bool{testImage: true},
		managedKey:    cli.ManagedLabelKey(),
	}
	d.wire()
	return d, cli
}

// ghostID is the occupant reported when alwaysConflict is set.
var ghostID = fmt.Sprintf("%064x", 999)

const (
	testName  = "transmission-promise-testing"
	testImage = "linuxserver/transmission:2.94-r3-ls53"
)

func (d *fakeDaemon) wire() {
	d.ContainerCreateFn = func(_ context.Context, opts client.ContainerCreateOptions) (client.ContainerCreateResult, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.alwaysConflict {
			return client.ContainerCreateResult{}, whailtest.NameConflictError(opts.Name, ghostID)
		}
		if existing, ok := d.containers[opts.Name]; ok {
			return client.ContainerCreateResult{}, whailtest.NameConflictError(opts.Name, existing.ID)
		}
		if !d.images[opts.Config.Image] {
			return client.ContainerCreateResult{}, whailtest.ImageNotFoundError(opts.Config.Image)
		}
		d.nextID++
		id := fmt.Sprintf("%064x", d.nextID)
		d.containers[opts.Name] = whailtest.ContainerSummary(id, opts.Name, opts.Config.Labels)
		return client.ContainerCreateResult{ID: id}, nil
	}
	d.ContainerStartFn = func(ctx context.Context, _ string, _ client.ContainerStartOptions) (client.ContainerStartResult, error) {
		if err := ctx.Err(); err != nil {
			return client.ContainerStartResult{}, err
		}
		return client.ContainerStartResult{}, d.startErr
	}
	d.ContainerRemoveFn = func(ctx context.Context, target string, _ client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
		if err := ctx.Err(); err != nil {
			return client.ContainerRemoveResult{}, err
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if target == ghostID {
			return client.ContainerRemoveResult{}, nil
		}
		for name, c := range d.containers {
			if c.ID == target || name == target {
				delete(d.containers, name)
				return client.ContainerRemoveResult{}, nil
			}
		}
		return client.ContainerRemoveResult{}, whailtest.ContainerNotFoundError(target)
	}
	d.ContainerListFn = func(_ context.Context, _ client.ContainerListOptions) (client.ContainerListResult, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		var items []container.Summary
		for _, c := range d.containers {
			items = append(items, c)
		}
		return client.ContainerListResult{Items: items}, nil
	}
	d.ImagePullFn = func(_ context.Context, ref string, _ client.ImagePullOptions) (io.ReadCloser, error) {
		if d.pullErr != nil {
			return whailtest.FailedPullStream(d.pullErr.Error()), nil
		}
		d.mu.Lock()
		if !d.pullKeepsImageMissing {
			d.images[ref] = true
		}
		d.mu.Unlock()
		return whailtest.SuccessfulPullStream(ref), nil
	}
	d.SetupExecCreate("exec-1")
	d.ExecAttachFn = func(_ context.Context, _ string, _ client.ExecAttachOptions) (client.ExecAttachResult, error) {
		return whailtest.ExecAttachResult(d.execOutput, ""), nil
	}
	d.ExecInspectFn = func(_ context.Context, _ string, _ client.ExecInspectOptions) (client.ExecInspectResult, error) {
		return client.ExecInspectResult{ExitCode: d.healthExit}, nil
	}
}

// addContainer places a container under name, as if left over from an
// earlier run.
func (d *fakeDaemon) addContainer(id, name string, managed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	labels := map[string]string{}
	if managed {
		labels[d.managedKey] = "true"
	}
	d.containers[name] = whailtest.ContainerSummary(id, name, labels)
}

func (d *fakeDaemon) containerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.containers)
}

func (d *fakeDaemon) containerID(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.containers[name].ID
}

func testContainerSpec(t *testing.T) engine.ContainerSpec {
	t.Helper()
	exposed, bindings, err := engine.ParsePortSpecs([]string{"9091:9091", "50143:50143/tcp", "50143:50143/udp"})
	require.NoError(t, err)
	image, err := engine.ParseImageRef(testImage)
	require.NoError(t, err)
	return engine.ContainerSpec{
		Name:          testName,
		Image:         image,
		Env:           []string{"PUID=1000", "PGID=1000", "TZ=Europe/London"},
		ExposedPorts:  exposed,
		PortBindings:  bindings,
		Volumes:       []string{"/config", "/downloads", "/watch"},
		Binds:         []string{"/tmp/rpc_healthcheck.sh:/rpc_healthcheck.sh"},
		RestartPolicy: whail.RestartPolicy{Name: whail.RestartPolicyUnlessStopped},
	}
}

func testManagerConfig(t *testing.T) ManagerConfig {
	t.Helper()
	return ManagerConfig{
		Spec:             testContainerSpec(t),
		Health:           fastPolicy,
		ReclaimUnmanaged: true,
		CleanupTimeout:   time.Second,
	}
}

func newTestManager(t *testing.T, mutate ...func(*ManagerConfig)) (*Manager, *fakeDaemon, *loggertest.TestLogger) {
	t.Helper()
	d, cli := newFakeDaemon(t)
	cfg := testManagerConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}
	log := loggertest.New()
	m, err := NewManager(cli, cfg, WithLogger(log))
	require.NoError(t, err)
	return m, d, log
}
