package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/executor"
	"github.com/schmitthub/torrentbed/internal/health"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/metrics"
)

// ManagerEngine is everything the Manager needs from the engine adapter.
type ManagerEngine interface {
	Engine
	executor.Engine
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Spec engine.ContainerSpec

	// ReadinessCommand is split shell-style; empty selects
	// health.DefaultReadinessCommand.
	ReadinessCommand string
	Health           health.Policy

	// RPCUsername and RPCPassword are passed to transmission-remote as
	// -n user:pass when RPCUsername is set.
	RPCUsername string
	RPCPassword string

	// RPCPort is the container port the RPC endpoint listens on.
	RPCPort string
	// EndpointHost replaces an unspecified binding host in Endpoint.
	EndpointHost string

	ReclaimUnmanaged bool
	CleanupTimeout   time.Duration
}

// Defaults for ManagerConfig.
const (
	DefaultRPCPort      = "9091/tcp"
	DefaultEndpointHost = "localhost"
)

// Manager is the caller-facing lifecycle API.
type Manager struct {
	cfg        ManagerConfig
	reconciler *Reconciler
	exec       *executor.Executor
	prober     *health.Prober
	metrics    *metrics.Metrics
	log        iostreams.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	metrics *metrics.Metrics
	log     iostreams.Logger
	out     io.Writer
}

// WithMetrics instruments the Manager and its components.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(o *managerOptions) { o.metrics = m }
}

// WithLogger sets the logger shared by the Manager's components.
func WithLogger(l iostreams.Logger) ManagerOption {
	return func(o *managerOptions) { o.log = l }
}

// WithExecOutput tees output of commands run in the container to w.
func WithExecOutput(w io.Writer) ManagerOption {
	return func(o *managerOptions) { o.out = w }
}

// NewManager wires a Reconciler, Executor and Prober around eng.
func NewManager(eng ManagerEngine, cfg ManagerConfig, opts ...ManagerOption) (*Manager, error) {
	nop := zerolog.Nop()
	o := managerOptions{log: &nop}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	if cfg.RPCPort == "" {
		cfg.RPCPort = DefaultRPCPort
	}
	if cfg.EndpointHost == "" {
		cfg.EndpointHost = DefaultEndpointHost
	}

	execOpts := []executor.Option{executor.WithLogger(o.log)}
	if o.out != nil {
		execOpts = append(execOpts, executor.WithOutput(o.out))
	}
	x := executor.New(eng, execOpts...)

	prober, err := health.NewProber(x, cfg.ReadinessCommand, health.WithMetrics(o.metrics), health.WithLogger(o.log))
	if err != nil {
		return nil, err
	}

	r := NewReconciler(eng, cfg.Spec,
		WithReclaimUnmanaged(cfg.ReclaimUnmanaged),
		WithCleanupTimeout(cfg.CleanupTimeout),
		WithReconcilerMetrics(o.metrics),
		WithReconcilerLogger(o.log),
	)

	return &Manager{
		cfg:        cfg,
		reconciler: r,
		exec:       x,
		prober:     prober,
		metrics:    o.metrics,
		log:        o.log,
	}, nil
}

// Handle returns the bound container handle.
func (m *Manager) Handle() engine.Handle { return m.reconciler.Handle() }

// State returns the reconciler state.
func (m *Manager) State() State { return m.reconciler.State() }

// Initialize reconciles the container and waits for it to become healthy.
// It returns successfully only with a running, health-confirmed container.
func (m *Manager) Initialize(ctx context.Context) (Outcome, error) {
	return m.InitializeWithPolicy(ctx, m.cfg.Health)
}

// InitializeWithPolicy is Initialize with an explicit polling policy.
func (m *Manager) InitializeWithPolicy(ctx context.Context, policy health.Policy) (Outcome, error) {
	out, err := m.reconciler.Reconcile(ctx)
	if err != nil {
		return out, err
	}

	h := m.reconciler.Handle()
	start := time.Now()
	_, err = m.prober.WaitHealthy(ctx, h, policy)
	out.Steps = append(out.Steps, Step{Stage: StageHealth, Target: h.ID, Duration: time.Since(start), Err: err})
	if err != nil {
		serr := &StageError{Stage: StageHealth, Err: err}
		out.Kind = OutcomeFailed
		out.Err = serr
		return out, serr
	}
	m.metrics.SetRunning(true)
	return out, nil
}

// Reconcile brings the container to running without waiting for it to
// become healthy.
func (m *Manager) Reconcile(ctx context.Context) (Outcome, error) {
	return m.reconciler.Reconcile(ctx)
}

// Wipeout removes the bound container. It fails with ErrNotInitialized
// when nothing is bound.
func (m *Manager) Wipeout(ctx context.Context) error {
	if err := m.reconciler.Wipeout(ctx); err != nil {
		return err
	}
	m.metrics.SetRunning(false)
	return nil
}

// Attach binds to an existing container with the configured name.
func (m *Manager) Attach(ctx context.Context) (engine.Handle, error) {
	return m.reconciler.Attach(ctx)
}

// Healthcheck runs the readiness command once.
func (m *Manager) Healthcheck(ctx context.Context) (health.Result, error) {
	h := m.reconciler.Handle()
	if h.IsZero() {
		return health.Result{}, ErrNotInitialized
	}
	res, err := m.prober.Probe(ctx, h)
	if err != nil {
		return health.Result{}, &StageError{Stage: StageHealth, Err: err}
	}
	return res, nil
}

// WaitHealthy polls the readiness command under policy.
func (m *Manager) WaitHealthy(ctx context.Context, policy health.Policy) (health.Result, error) {
	h := m.reconciler.Handle()
	if h.IsZero() {
		return health.Result{}, ErrNotInitialized
	}
	res, err := m.prober.WaitHealthy(ctx, h, policy)
	if err != nil {
		return res, &StageError{Stage: StageHealth, Err: err}
	}
	return res, nil
}

// Exec runs argv in the bound container.
func (m *Manager) Exec(ctx context.Context, argv []string) (engine.ExecResult, error) {
	h := m.reconciler.Handle()
	if h.IsZero() {
		return engine.ExecResult{}, ErrNotInitialized
	}
	res, err := m.exec.Exec(ctx, h, argv)
	if err != nil {
		return res, &StageError{Stage: StageExec, Err: err}
	}
	return res, nil
}

// AddTorrent asks the daemon in the container to add source, a URL or a
// path to a .torrent file visible inside the container. It reports whether
// transmission-remote exited 0.
func (m *Manager) AddTorrent(ctx context.Context, source string) (bool, error) {
	if source == "" {
		return false, errors.New("torrent source is required")
	}
	res, err := m.Exec(ctx, m.addTorrentCommand(source))
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		m.log.Warn().Int("exit_code", res.ExitCode).Str("source", source).Msg("transmission-remote rejected torrent")
	}
	return res.ExitCode == 0, nil
}

func (m *Manager) addTorrentCommand(source string) []string {
	argv := []string{"transmission-remote"}
	if m.cfg.RPCUsername != "" {
		argv = append(argv, "-n", m.cfg.RPCUsername+":"+m.cfg.RPCPassword)
	}
	return append(argv, "-a", source)
}

// Endpoint returns host:port of the published RPC port.
func (m *Manager) Endpoint() (string, error) {
	addr, err := engine.PublishedAddress(m.cfg.Spec.PortBindings, m.cfg.RPCPort, m.cfg.EndpointHost)
	if err != nil {
		return "", fmt.Errorf("rpc endpoint: %w", err)
	}
	return addr, nil
}
