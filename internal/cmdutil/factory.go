package cmdutil

import (
	"context"

	"github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
	"github.com/schmitthub/torrentbed/internal/metrics"
)

// Lifecycle is the container lifecycle surface commands drive.
// *lifecycle.Manager implements it; command tests substitute fakes.
type Lifecycle interface {
	Reconcile(ctx context.Context) (lifecycle.Outcome, error)
	InitializeWithPolicy(ctx context.Context, policy health.Policy) (lifecycle.Outcome, error)
	Wipeout(ctx context.Context) error
	Attach(ctx context.Context) (engine.Handle, error)
	Healthcheck(ctx context.Context) (health.Result, error)
	WaitHealthy(ctx context.Context, policy health.Policy) (health.Result, error)
	AddTorrent(ctx context.Context, source string) (bool, error)
	Endpoint() (string, error)
}

var _ Lifecycle = (*lifecycle.Manager)(nil)

// Factory provides shared dependencies for CLI commands.
// It is a dependency injection container: the struct defines what
// dependencies exist (the contract), while internal/cmd/factory
// wires the real implementations.
//
// Closure fields are set by the factory constructor and use lazy
// initialization internally. Commands extract only the fields they
// need into per-command Options structs.
type Factory struct {
	// Configuration from flags (set before command execution)
	WorkDir     string
	ConfigFile  string
	MetricsFile string
	Debug       bool

	// Version info (set at build time via ldflags)
	Version string
	Commit  string

	// RunID tags every container this process creates.
	RunID string

	IOStreams *iostreams.IOStreams
	Metrics   *metrics.Metrics

	Config func() (*config.Config, error)

	Client      func(context.Context) (*engine.Client, error)
	CloseClient func()

	// Lifecycle builds the manager for the configured container.
	Lifecycle func(context.Context) (Lifecycle, error)

	// Lock takes the cross-process lock for the configured container.
	Lock func(context.Context) (*LifecycleLock, error)
}
