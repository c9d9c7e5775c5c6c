// Package cmdutiltest provides test doubles for command tests.
package cmdutiltest

import (
	"context"
	"sync"
	"testing"

	"github.com/schmitthub/torrentbed/internal/cmdutil"
	"github.com/schmitthub/torrentbed/internal/config"
	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/iostreams/iostreamstest"
	"github.com/schmitthub/torrentbed/internal/lifecycle"
)

// FakeLifecycle implements cmdutil.Lifecycle with function fields. A nil
// field returns zero values. Method names are recorded in Calls.
type FakeLifecycle struct {
	ReconcileFn            func(context.Context) (lifecycle.Outcome, error)
	InitializeWithPolicyFn func(context.Context, health.Policy) (lifecycle.Outcome, error)
	WipeoutFn              func(context.Context) error
	AttachFn               func(context.Context) (engine.Handle, error)
	HealthcheckFn          func(context.Context) (health.Result, error)
	WaitHealthyFn          func(context.Context, health.Policy) (health.Result, error)
	AddTorrentFn           func(context.Context, string) (bool, error)
	EndpointFn             func() (string, error)

	mu    sync.Mutex
	Calls []string
}

var _ cmdutil.Lifecycle = (*FakeLifecycle)(nil)

func (f *FakeLifecycle) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, name)
}

// CallNames returns a copy of the recorded calls.
func (f *FakeLifecycle) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeLifecycle) Reconcile(ctx context.Context) (lifecycle.Outcome, error) {
	f.record("Reconcile")
	if f.ReconcileFn == nil {
		return lifecycle.Outcome{}, nil
	}
	return f.ReconcileFn(ctx)
}

func (f *FakeLifecycle) InitializeWithPolicy(ctx context.Context, p health.Policy) (lifecycle.Outcome, error) {
	f.record("InitializeWithPolicy")
	if f.InitializeWithPolicyFn == nil {
		return lifecycle.Outcome{}, nil
	}
	return f.InitializeWithPolicyFn(ctx, p)
}

func (f *FakeLifecycle) Wipeout(ctx context.Context) error {
	f.record("Wipeout")
	if f.WipeoutFn == nil {
		return nil
	}
	return f.WipeoutFn(ctx)
}

func (f *FakeLifecycle) Attach(ctx context.Context) (engine.Handle, error) {
	f.record("Attach")
	if f.AttachFn == nil {
		return engine.Handle{}, nil
	}
	return f.AttachFn(ctx)
}

func (f *FakeLifecycle) Healthcheck(ctx context.Context) (health.Result, error) {
	f.record("Healthcheck")
	if f.HealthcheckFn == nil {
		return health.Result{}, nil
	}
	return f.HealthcheckFn(ctx)
}

func (f *FakeLifecycle) WaitHealthy(ctx context.Context, p health.Policy) (health.Result, error) {
	f.record("WaitHealthy")
	if f.WaitHealthyFn == nil {
		return health.Result{}, nil
	}
	return f.WaitHealthyFn(ctx, p)
}

func (f *FakeLifecycle) AddTorrent(ctx context.Context, source string) (bool, error) {
	f.record("AddTorrent")
	if f.AddTorrentFn == nil {
		return false, nil
	}
	return f.AddTorrentFn(ctx, source)
}

func (f *FakeLifecycle) Endpoint() (string, error) {
	f.record("Endpoint")
	if f.EndpointFn == nil {
		return "", nil
	}
	return f.EndpointFn()
}

// NewFactory returns a Factory wired to lc, test IO streams, the loaded
// default configuration for a temp working dir and a lock under that dir.
func NewFactory(t *testing.T, lc cmdutil.Lifecycle) (*cmdutil.Factory, *iostreamstest.TestIOStreams) {
	t.Helper()
	tio := iostreamstest.New()
	dir := t.TempDir()

	cfg, err := config.NewLoader(dir, config.WithEnvFile("")).Load()
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}

	f := &cmdutil.Factory{
		WorkDir:   dir,
		Version:   "1.0.0",
		RunID:     "run-test",
		IOStreams: tio.IOStreams,
		Config:    func() (*config.Config, error) { return cfg, nil },
		Lifecycle: func(context.Context) (cmdutil.Lifecycle, error) { return lc, nil },
		Lock: func(ctx context.Context) (*cmdutil.LifecycleLock, error) {
			return cmdutil.AcquireLifecycleLock(ctx, cmdutil.LockPath(dir, cfg.Container.Name))
		},
	}
	return f, tio
}
