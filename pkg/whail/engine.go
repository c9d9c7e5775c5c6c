package whail

import (
	"context"
	"errors"

	"github.com/moby/moby/client"
)

// EngineOptions configures the behavior of the Engine.
type EngineOptions struct {
	// LabelPrefix is the prefix for all managed labels (e.g., "dev.torrentbed").
	// Used to construct the managed label key: "{LabelPrefix}.{ManagedLabel}".
	LabelPrefix string

	// ManagedLabel is the label key suffix that marks containers as managed.
	// Default: "managed".
	ManagedLabel string

	// Labels configures additional labels applied on create.
	Labels LabelConfig
}

// DefaultManagedLabel is the default label suffix for marking managed resources.
const DefaultManagedLabel = "managed"

// Engine wraps the Docker client with automatic label tagging and typed
// error conversion.
type Engine struct {
	api     APIClient
	puller  ImagePuller
	options EngineOptions

	managedLabelKey   string // e.g., "dev.torrentbed.managed"
	managedLabelValue string // always "true"
}

// NewEngine creates a new Engine on top of a moby client built from
// clientOpts (client.FromEnv when none are given). It verifies the daemon
// answers a ping.
func NewEngine(ctx context.Context, opts EngineOptions, clientOpts ...client.Opt) (*Engine, error) {
	if len(clientOpts) == 0 {
		clientOpts = []client.Opt{client.FromEnv}
	}
	cli, err := client.New(clientOpts...)
	if err != nil {
		return nil, ErrDockerNotRunning(err)
	}

	engine := NewFromClient(cli, mobyPuller{cli: cli}, opts)
	if err := engine.HealthCheck(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return engine, nil
}

// NewFromClient wraps an existing APIClient without contacting the daemon.
// A nil puller makes PullImage fail.
func NewFromClient(api APIClient, puller ImagePuller, opts EngineOptions) *Engine {
	if opts.ManagedLabel == "" {
		opts.ManagedLabel = DefaultManagedLabel
	}
	return &Engine{
		api:               api,
		puller:            puller,
		options:           opts,
		managedLabelKey:   opts.LabelPrefix + "." + opts.ManagedLabel,
		managedLabelValue: "true",
	}
}

// HealthCheck verifies the Docker daemon is reachable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if _, err := e.api.Ping(ctx, client.PingOptions{}); err != nil {
		return ErrDockerNotRunning(err)
	}
	return nil
}

// Close releases Docker client resources.
func (e *Engine) Close() error {
	return e.api.Close()
}

// Options returns the engine options.
func (e *Engine) Options() EngineOptions {
	return e.options
}

// ManagedLabelKey returns the full managed label key (e.g., "dev.torrentbed.managed").
func (e *Engine) ManagedLabelKey() string {
	return e.managedLabelKey
}

// ManagedLabelValue returns the managed label value (always "true").
func (e *Engine) ManagedLabelValue() string {
	return e.managedLabelValue
}

// IsManaged reports whether a label set carries the managed label.
func (e *Engine) IsManaged(labels map[string]string) bool {
	return labels[e.managedLabelKey] == e.managedLabelValue
}

// containerLabels returns labels for a container. The managed label is
// applied last so callers cannot unset it.
func (e *Engine) containerLabels(extra ...map[string]string) map[string]string {
	labels := e.options.Labels.ContainerLabels(extra...)
	labels[e.managedLabelKey] = e.managedLabelValue
	return labels
}

var errNoPuller = errors.New("engine has no image puller configured")
