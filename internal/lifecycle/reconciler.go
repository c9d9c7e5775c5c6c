// Package lifecycle drives the container under test from "nothing" to a
// running, health-confirmed state and back.
//
// The Reconciler turns the engine's error-driven, non-idempotent API into a
// small state machine:
//
//	Idle -> Creating -> Created -> Starting -> Running
//	           |  ^
//	           |  +-- ImageMissing  (pull once, create again)
//	           |  +-- NameConflict  (remove occupant once, create again)
//	           +----> Failed
//
// Every engine call is awaited before the next one is issued. The Manager
// composes the Reconciler with health probing and command execution and is
// what callers use.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/iostreams"
	"github.com/schmitthub/torrentbed/internal/metrics"
)

// ErrNotInitialized is returned by operations that need a bound container
// when none is bound.
var ErrNotInitialized = errors.New("no container is bound; initialize or attach first")

// ErrUnmanagedOccupant is returned when the container name is held by a
// container this tool did not create and reclaiming it is disabled.
var ErrUnmanagedOccupant = errors.New("container name is held by an unmanaged container")

// DefaultCleanupTimeout bounds the best-effort removal of a half-created
// container after a failure.
const DefaultCleanupTimeout = 10 * time.Second

// State is a reconciliation state.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateImageMissing
	StateNameConflict
	StateCreated
	StateStarting
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateImageMissing:
		return "image-missing"
	case StateNameConflict:
		return "name-conflict"
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Engine is the slice of the engine adapter the Reconciler drives.
type Engine interface {
	CreateContainer(ctx context.Context, spec engine.ContainerSpec) (engine.Handle, error)
	RemoveContainer(ctx context.Context, h engine.Handle, opts engine.RemoveOptions) error
	StartContainer(ctx context.Context, h engine.Handle) error
	PullImage(ctx context.Context, reference string) error
	FindContainer(ctx context.Context, name string) (engine.Handle, error)
}

// Reconciler owns the handle of the one container it manages.
type Reconciler struct {
	engine           Engine
	spec             engine.ContainerSpec
	reclaimUnmanaged bool
	cleanupTimeout   time.Duration
	metrics          *metrics.Metrics
	log              iostreams.Logger

	mu     sync.Mutex
	handle engine.Handle
	state  State
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReclaimUnmanaged controls whether a name conflict with a container
// that lacks the managed label is resolved by removing it (true, the
// default) or reported as ErrUnmanagedOccupant.
func WithReclaimUnmanaged(reclaim bool) ReconcilerOption {
	return func(r *Reconciler) { r.reclaimUnmanaged = reclaim }
}

// WithCleanupTimeout bounds post-failure cleanup.
func WithCleanupTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.cleanupTimeout = d
		}
	}
}

// WithReconcilerMetrics counts outcomes.
func WithReconcilerMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(l iostreams.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = l }
}

// NewReconciler returns a Reconciler for spec. The spec is copied.
func NewReconciler(eng Engine, spec engine.ContainerSpec, opts ...ReconcilerOption) *Reconciler {
	nop := zerolog.Nop()
	r := &Reconciler{
		engine:           eng,
		spec:             spec.Clone(),
		reclaimUnmanaged: true,
		cleanupTimeout:   DefaultCleanupTimeout,
		log:              &nop,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Spec returns a copy of the container spec.
func (r *Reconciler) Spec() engine.ContainerSpec { return r.spec.Clone() }

// Handle returns the bound handle, which is zero when none is bound.
func (r *Reconciler) Handle() engine.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// run carries the bookkeeping of one Reconcile call.
type run struct {
	outcome   Outcome
	pulled    bool
	reclaimed bool
	created   engine.Handle // container created by this call, for cleanup
}

func (rn *run) step(stage Stage, target string, start time.Time, err error) {
	rn.outcome.Steps = append(rn.outcome.Steps, Step{
		Stage:    stage,
		Target:   target,
		Duration: time.Since(start),
		Err:      err,
	})
}

// Reconcile brings the container to Running. It returns when the engine has
// accepted the start; it does not probe health.
//
// At most one image pull and one conflict recovery happen per call. Any
// other create error, a start failure or cancellation of ctx ends in
// Failed, and a container created during the call is removed again.
func (r *Reconciler) Reconcile(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn := &run{outcome: Outcome{Kind: OutcomeCreated}}
	r.state = StateCreating
	r.log.Info().Str("name", r.spec.Name).Str("image", r.spec.Image.Reference()).Msg("reconciling container")

	for {
		start := time.Now()
		h, err := r.engine.CreateContainer(ctx, r.spec)
		rn.step(StageCreate, r.spec.Name, start, err)
		if err == nil {
			rn.created = h
			r.handle = h
			r.state = StateCreated
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fail(ctx, rn, StageCreate, ctxErr)
		}
		if stage, err := r.recover(ctx, rn, err); err != nil {
			return r.fail(ctx, rn, stage, err)
		}
	}

	r.state = StateStarting
	start := time.Now()
	err := r.engine.StartContainer(ctx, rn.created)
	rn.step(StageStart, rn.created.ID, start, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return r.fail(ctx, rn, StageStart, err)
	}

	r.state = StateRunning
	rn.outcome.Handle = r.handle
	r.metrics.RecordOutcome(rn.outcome.Kind.String())
	r.log.Info().
		Str("container", r.handle.ShortID()).
		Str("outcome", rn.outcome.Kind.String()).
		Msg("container running")
	return rn.outcome, nil
}

// recover handles one failed create. A nil error means "create again".
func (r *Reconciler) recover(ctx context.Context, rn *run, err error) (Stage, error) {
	var (
		missing  *engine.ImageNotFoundError
		conflict *engine.NameConflictError
	)
	switch {
	case errors.As(err, &missing):
		if rn.pulled {
			return StageCreate, fmt.Errorf("image %s still missing after pull: %w", missing.Reference, err)
		}
		rn.pulled = true
		r.state = StateImageMissing
		if rn.outcome.Kind == OutcomeCreated {
			rn.outcome.Kind = OutcomeRecoveredFromMissingImage
		}
		r.log.Info().Str("image", missing.Reference).Msg("image not found locally, pulling")

		start := time.Now()
		pullErr := r.engine.PullImage(ctx, missing.Reference)
		rn.step(StagePull, missing.Reference, start, pullErr)
		if pullErr != nil {
			return StagePull, pullErr
		}
		r.state = StateCreating
		return "", nil

	case errors.As(err, &conflict):
		if rn.reclaimed {
			return StageCreate, fmt.Errorf("name conflict persisted after removing the previous container: %w", err)
		}
		rn.reclaimed = true
		r.state = StateNameConflict
		if !conflict.Managed {
			if !r.reclaimUnmanaged {
				return StageCreate, fmt.Errorf("%w: %q (%s)", ErrUnmanagedOccupant, conflict.Name, conflict.Target())
			}
			r.log.Warn().Str("name", conflict.Name).Str("container", conflict.Target()).
				Msg("removing a container this tool did not create")
		}
		rn.outcome.Kind = OutcomeRecoveredFromConflict
		rn.outcome.ExistingID = conflict.ExistingID

		// Bind to the occupant, then remove it.
		r.handle = engine.Handle{ID: conflict.ExistingID, Name: conflict.Name}
		r.log.Info().Str("name", conflict.Name).Str("container", conflict.Target()).
			Msg("name in use, removing existing container")

		start := time.Now()
		rmErr := r.engine.RemoveContainer(ctx, r.handle, engine.RemoveOptions{Force: true})
		rn.step(StageRemove, conflict.Target(), start, rmErr)
		if rmErr != nil {
			return StageRemove, rmErr
		}
		r.handle = engine.Handle{}
		r.state = StateCreating
		return "", nil
	}
	return StageCreate, err
}

// fail records a Failed outcome. A container created during this call is
// removed with a context detached from ctx, so cancellation cannot orphan
// it.
func (r *Reconciler) fail(ctx context.Context, rn *run, stage Stage, err error) (Outcome, error) {
	r.state = StateFailed
	// An occupant that could not be removed stays bound so Wipeout can
	// retry; a container created here is removed and unbound.
	if !rn.created.IsZero() {
		r.cleanup(ctx, rn.created)
		r.handle = engine.Handle{}
	}

	serr := &StageError{Stage: stage, Err: err}
	rn.outcome.Kind = OutcomeFailed
	rn.outcome.Err = serr
	rn.outcome.Handle = engine.Handle{}
	r.metrics.RecordOutcome(OutcomeFailed.String())
	r.log.Error().Err(err).Str("stage", string(stage)).Str("name", r.spec.Name).Msg("reconciliation failed")
	return rn.outcome, serr
}

func (r *Reconciler) cleanup(parent context.Context, h engine.Handle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.cleanupTimeout)
	defer cancel()
	if err := r.engine.RemoveContainer(ctx, h, engine.RemoveOptions{Force: true}); err != nil {
		r.log.Warn().Err(err).Str("container", h.ShortID()).Msg("could not remove container after failure")
		return
	}
	r.log.Debug().Str("container", h.ShortID()).Msg("removed container after failure")
}

// Wipeout force-removes the bound container and clears the handle.
func (r *Reconciler) Wipeout(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle.IsZero() {
		return ErrNotInitialized
	}
	h := r.handle
	r.log.Info().Str("container", h.ShortID()).Msg("removing container")
	if err := r.engine.RemoveContainer(ctx, h, engine.RemoveOptions{Force: true}); err != nil {
		return &StageError{Stage: StageRemove, Err: err}
	}
	r.handle = engine.Handle{}
	r.state = StateIdle
	return nil
}

// Attach binds the handle to an existing container with the spec's name,
// so a process that did not create it can probe, exec in or remove it.
func (r *Reconciler) Attach(ctx context.Context) (engine.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.engine.FindContainer(ctx, r.spec.Name)
	if err != nil {
		if engine.IsContainerNotFound(err) {
			return engine.Handle{}, fmt.Errorf("%w: no container named %q", ErrNotInitialized, r.spec.Name)
		}
		return engine.Handle{}, &StageError{Stage: StageAttach, Err: err}
	}
	r.handle = h
	r.state = StateRunning
	r.log.Debug().Str("container", h.ShortID()).Msg("attached to existing container")
	return h, nil
}
