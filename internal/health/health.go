// Package health decides whether the bound container is ready by running a
// readiness command inside it.
package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/executor"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/metrics"
)

// DefaultReadinessCommand is run inside the container to check readiness.
const DefaultReadinessCommand = "bash /rpc_healthcheck.sh"

// Default polling policy.
const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// detailTail bounds how much command output goes into Result.Detail.
const detailTail = 512

// Result is the outcome of one readiness check.
type Result struct {
	Healthy bool
	// Detail is non-empty whenever Healthy is false.
	Detail string
}

// Policy bounds WaitHealthy.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPolicy polls every 2s for up to 30s.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// TimeoutError is returned by WaitHealthy when the container did not become
// healthy within the policy's ceiling.
type TimeoutError struct {
	Timeout  time.Duration
	Attempts int
	Last     Result
	// LastErr is the most recent exec failure, if the last probe could not
	// run at all.
	LastErr error
}

func (e *TimeoutError) Error() string {
	reason := e.Last.Detail
	if e.LastErr != nil {
		reason = e.LastErr.Error()
	}
	if reason == "" {
		reason = "no probe completed"
	}
	return fmt.Sprintf("container not healthy after %s (%d probes): %s", e.Timeout, e.Attempts, reason)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Executor runs commands in a container.
type Executor interface {
	Exec(ctx context.Context, h engine.Handle, argv []string) (engine.ExecResult, error)
}

// Prober runs the readiness command.
type Prober struct {
	exec    Executor
	argv    []string
	metrics *metrics.Metrics
	log     iostreams.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithMetrics counts probe results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) { p.metrics = m }
}

// WithLogger sets the prober's logger.
func WithLogger(l iostreams.Logger) Option {
	return func(p *Prober) { p.log = l }
}

// NewProber builds a prober for command, a shell-style command line. An
// empty command selects DefaultReadinessCommand.
func NewProber(exec Executor, command string, opts ...Option) (*Prober, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultReadinessCommand
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid readiness command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("invalid readiness command %q: empty", command)
	}

	nop := zerolog.Nop()
	p := &Prober{exec: exec, argv: argv, log: &nop}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Command returns the readiness argv.
func (p *Prober) Command() []string {
	return append([]string(nil), p.argv...)
}

// Probe runs the readiness command once. Exit code 0 is healthy; any other
// exit code is unhealthy. An error means the probe could not run.
func (p *Prober) Probe(ctx context.Context, h engine.Handle) (Result, error) {
	res, err := p.exec.Exec(ctx, h, p.argv)
	if err != nil {
		p.metrics.RecordProbe("error")
		return Result{}, err
	}
	if res.ExitCode == 0 {
		p.metrics.RecordProbe("healthy")
		return Result{Healthy: true}, nil
	}
	p.metrics.RecordProbe("unhealthy")
	return Result{Detail: unhealthyDetail(res)}, nil
}

func unhealthyDetail(res engine.ExecResult) string {
	detail := fmt.Sprintf("readiness command exited with code %d", res.ExitCode)
	out := strings.TrimSpace(string(res.Output))
	if len(out) > detailTail {
		out = out[len(out)-detailTail:]
	}
	if out != "" {
		detail += ": " + out
	}
	return detail
}

// errUnhealthy drives a retry when a probe ran but failed.
var errUnhealthy = errors.New("unhealthy")

// errCeiling is the cause attached to the policy deadline.
var errCeiling = errors.New("health wait ceiling reached")

// WaitHealthy probes at policy.Interval until the container is healthy,
// policy.Timeout elapses or ctx is cancelled. Exec failures are retried,
// since the engine may refuse exec while the container settles. Calls
// that can never succeed (no handle bound) fail immediately.
func (p *Prober) WaitHealthy(ctx context.Context, h engine.Handle, policy Policy) (Result, error) {
	policy = policy.withDefaults()
	waitCtx, cancel := context.WithTimeoutCause(ctx, policy.Timeout, errCeiling)
	defer cancel()

	var (
		last     Result
		lastErr  error
		attempts int
	)
	start := time.Now()
	res, err := backoff.Retry(waitCtx, func() (Result, error) {
		attempts++
		r, err := p.Probe(waitCtx, h)
		switch {
		case errors.Is(err, executor.ErrUnsetHandle), errors.Is(err, executor.ErrEmptyCommand):
			return r, backoff.Permanent(err)
		case err != nil:
			lastErr = err
			return r, err
		}
		last, lastErr = r, nil
		if !r.Healthy {
			return r, errUnhealthy
		}
		return r, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxElapsedTime(policy.Timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			ev := p.log.Debug().Str("container", h.ShortID()).Dur("retry_in", next)
			if errors.Is(err, errUnhealthy) {
				ev = ev.Str("detail", last.Detail)
			} else {
				ev = ev.Err(err)
			}
			ev.Msg("not healthy yet")
		}),
	)

	switch {
	case err == nil:
		p.log.Info().Str("container", h.ShortID()).Int("probes", attempts).
			Dur("elapsed", time.Since(start)).Msg("container healthy")
		return res, nil
	case ctx.Err() != nil:
		return last, ctx.Err()
	case errors.Is(err, executor.ErrUnsetHandle), errors.Is(err, executor.ErrEmptyCommand):
		return Result{}, err
	}
	return last, &TimeoutError{Timeout: policy.Timeout, Attempts: attempts, Last: last, LastErr: lastErr}
}
