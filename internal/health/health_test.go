package health

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/executor"
	"github.com/schmitthub/torrentbed/internal/logger/loggertest"
	"github.com/schmitthub/torrentbed/internal/metrics"
)

type step struct {
	res engine.ExecResult
	err error
}

// scriptedExecutor replays steps in order and repeats the last one.
type scriptedExecutor struct {
	mu    sync.Mutex
	steps []step
	argvs [][]string
}

func (s *scriptedExecutor) Exec(_ context.Context, h engine.Handle, argv []string) (engine.ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.IsZero() {
		return engine.ExecResult{}, executor.ErrUnsetHandle
	}
	s.argvs = append(s.argvs, argv)
	st := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return st.res, st.err
}

func (s *scriptedExecutor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.argvs)
}

var (
	bound   = engine.Handle{ID: "0123456789abcdef", Name: "svc"}
	healthy = step{res: engine.ExecResult{ExitCode: 0}}
	failing = step{res: engine.ExecResult{ExitCode: 1, Output: []byte("curl: (7) Failed to connect\n")}}
	refused = step{err: &executor.ExecSessionError{Argv: []string{"bash"}, Err: errors.New("container is restarting")}}
	fast    = Policy{Interval: 5 * time.Millisecond, Timeout: 200 * time.Millisecond}
)

func newProber(t *testing.T, ex Executor, opts ...Option) *Prober {
	t.Helper()
	p, err := NewProber(ex, "", opts...)
	require.NoError(t, err)
	return p
}

func TestNewProber_Command(t *testing.T) {
	p := newProber(t, &scriptedExecutor{})
	assert.Equal(t, []string{"bash", "/rpc_healthcheck.sh"}, p.Command())

	p, err := NewProber(&scriptedExecutor{}, `sh -c "curl -fs localhost:9091/transmission/web/"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "curl -fs localhost:9091/transmission/web/"}, p.Command())

	_, err = NewProber(&scriptedExecutor{}, `sh -c "unterminated`)
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	m := metrics.New()

	t.Run("healthy", func(t *testing.T) {
		ex := &scriptedExecutor{steps: []step{healthy}}
		r, err := newProber(t, ex, WithMetrics(m)).Probe(context.Background(), bound)
		require.NoError(t, err)
		assert.True(t, r.Healthy)
		assert.Empty(t, r.Detail)
		assert.Equal(t, [][]string{{"bash", "/rpc_healthcheck.sh"}}, ex.argvs)
	})

	t.Run("unhealthy carries exit code and output", func(t *testing.T) {
		ex := &scriptedExecutor{steps: []step{failing}}
		r, err := newProber(t, ex, WithMetrics(m)).Probe(context.Background(), bound)
		require.NoError(t, err)
		assert.False(t, r.Healthy)
		assert.Equal(t, "readiness command exited with code 1: curl: (7) Failed to connect", r.Detail)
	})

	t.Run("unhealthy without output", func(t *testing.T) {
		ex := &scriptedExecutor{steps: []step{{res: engine.ExecResult{ExitCode: 127}}}}
		r, err := newProber(t, ex).Probe(context.Background(), bound)
		require.NoError(t, err)
		assert.Equal(t, "readiness command exited with code 127", r.Detail)
	})

	t.Run("session failure is an error", func(t *testing.T) {
		ex := &scriptedExecutor{steps: []step{refused}}
		_, err := newProber(t, ex, WithMetrics(m)).Probe(context.Background(), bound)
		var sessionErr *executor.ExecSessionError
		assert.ErrorAs(t, err, &sessionErr)
	})

	expected := `
# HELP torrentbed_health_probes_total Readiness probes by result (healthy, unhealthy, error)
# TYPE torrentbed_health_probes_total counter
torrentbed_health_probes_total{result="error"} 1
torrentbed_health_probes_total{result="healthy"} 1
torrentbed_health_probes_total{result="unhealthy"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "torrentbed_health_probes_total"))
}

func TestUnhealthyDetailIsBounded(t *testing.T) {
	out := strings.Repeat("x", 2*detailTail)
	d := unhealthyDetail(engine.ExecResult{ExitCode: 2, Output: []byte(out)})
	assert.Equal(t, len("readiness command exited with code 2: ")+detailTail, len(d))
}

func TestWaitHealthy_EventuallyHealthy(t *testing.T) {
	ex := &scriptedExecutor{steps: []step{refused, failing, failing, healthy}}
	log := loggertest.New()
	r, err := newProber(t, ex, WithLogger(log)).WaitHealthy(context.Background(), bound, fast)

	require.NoError(t, err)
	assert.True(t, r.Healthy)
	assert.Equal(t, 4, ex.count())
	assert.True(t, log.HasMessage("debug", "not healthy yet"))
	assert.True(t, log.HasMessage("info", "container healthy"))
}

func TestWaitHealthy_Timeout(t *testing.T) {
	ex := &scriptedExecutor{steps: []step{failing}}
	start := time.Now()
	r, err := newProber(t, ex).WaitHealthy(context.Background(), bound, Policy{Interval: 10 * time.Millisecond, Timeout: 60 * time.Millisecond})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.False(t, r.Healthy)
	assert.Contains(t, r.Detail, "exited with code 1")
	assert.Greater(t, timeout.Attempts, 1)
	assert.Contains(t, err.Error(), "container not healthy after 60ms")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitHealthy_TimeoutAfterSessionFailures(t *testing.T) {
	ex := &scriptedExecutor{steps: []step{refused}}
	_, err := newProber(t, ex).WaitHealthy(context.Background(), bound, Policy{Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	var sessionErr *executor.ExecSessionError
	assert.ErrorAs(t, err, &sessionErr)
	assert.Contains(t, err.Error(), "container is restarting")
}

func TestWaitHealthy_UnsetHandleFailsFast(t *testing.T) {
	ex := &scriptedExecutor{steps: []step{healthy}}
	_, err := newProber(t, ex).WaitHealthy(context.Background(), engine.Handle{}, fast)
	assert.ErrorIs(t, err, executor.ErrUnsetHandle)
}

func TestWaitHealthy_ContextCancelled(t *testing.T) {
	ex := &scriptedExecutor{steps: []step{failing}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newProber(t, ex).WaitHealthy(ctx, bound, Policy{Interval: 5 * time.Millisecond, Timeout: 10 * time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	var timeout *TimeoutError
	assert.False(t, errors.As(err, &timeout))
}

func TestPolicyDefaults(t *testing.T) {
	assert.Equal(t, DefaultPolicy(), Policy{}.withDefaults())
	assert.Equal(t, Policy{Interval: time.Second, Timeout: DefaultTimeout}, Policy{Interval: time.Second}.withDefaults())
}
