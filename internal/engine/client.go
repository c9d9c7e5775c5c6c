// Package engine adapts the container engine to the five primitive
// operations the reconciler needs: create, remove, start, pull and exec.
//
// Raw engine failures are classified exactly once, here, into
// *ImageNotFoundError, *NameConflictError and *EngineUnreachableError;
// everything else surfaces as *whail.DockerError. Callers use errors.As and
// never look at message text. The adapter performs no retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schmitthub/torrentbed/internal/logger"
	"github.com/schmitthub/torrentbed/internal/metrics"
	"github.com/schmitthub/torrentbed/pkg/whail"
)

// DefaultLabelPrefix namespaces the labels this tool puts on containers.
const DefaultLabelPrefix = "dev.torrentbed"

// RunLabel is the label suffix carrying the per-process run ID.
const RunLabel = "run"

// Handle identifies a created container. The zero value is "unset".
type Handle struct {
	ID   string
	Name string
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool { return h.ID == "" }

// ShortID returns the 12-character form of the ID.
func (h Handle) ShortID() string { return shortID(h.ID) }

func (h Handle) String() string {
	if h.IsZero() {
		return "<unset>"
	}
	return fmt.Sprintf("%s (%s)", h.Name, h.ShortID())
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force bool
}

// ExecResult is the outcome of a command that ran to completion.
type ExecResult struct {
	ExitCode int
	// Output holds the last ExecOutputTail bytes of combined stdout and
	// stderr, for diagnostics. The full stream went to the caller's writer.
	Output []byte
}

// ExecOutputTail bounds ExecResult.Output.
const ExecOutputTail = 4096

// Client is the engine adapter.
type Client struct {
	engine  *whail.Engine
	metrics *metrics.Metrics

	pullOut      io.Writer
	pullTerminal bool
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithMetrics instruments every engine call.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithPullProgress renders image pull progress to w.
func WithPullProgress(w io.Writer, isTerminal bool) ClientOption {
	return func(c *Client) {
		c.pullOut = w
		c.pullTerminal = isTerminal
	}
}

// Connect builds a moby client from opts, verifies the daemon answers and
// returns the adapter.
func Connect(ctx context.Context, opts Options, clientOpts ...ClientOption) (*Client, error) {
	mobyOpts, err := opts.clientOpts()
	if err != nil {
		return nil, err
	}
	eng, err := whail.NewEngine(ctx, engineOptions(opts), mobyOpts...)
	if err != nil {
		return nil, classify(err)
	}
	return New(eng, clientOpts...), nil
}

// New wraps an existing whail engine.
func New(eng *whail.Engine, opts ...ClientOption) *Client {
	c := &Client{engine: eng}
	for _, o := range opts {
		o(c)
	}
	return c
}

func engineOptions(opts Options) whail.EngineOptions {
	prefix := opts.LabelPrefix
	if prefix == "" {
		prefix = DefaultLabelPrefix
	}
	eo := whail.EngineOptions{LabelPrefix: prefix}
	if opts.RunID != "" {
		eo.Labels.Default = map[string]string{prefix + "." + RunLabel: opts.RunID}
	}
	return eo
}

// EngineOptions exposes the whail options Connect would use, for callers
// that build the engine themselves (tests).
func EngineOptions(opts Options) whail.EngineOptions { return engineOptions(opts) }

// observe records the duration and error class of one engine call.
func (c *Client) observe(op string, start time.Time, err error) {
	c.metrics.ObserveEngineOp(op, start, errorClass(err), err)
}

func errorClass(err error) string {
	var (
		notFound    *ImageNotFoundError
		conflict    *NameConflictError
		unreachable *EngineUnreachableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return "image_not_found"
	case errors.As(err, &conflict):
		return "name_conflict"
	case errors.As(err, &unreachable):
		return "unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

// Ping verifies the daemon is reachable.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.observe("ping", start, err) }()
	return classify(c.engine.HealthCheck(ctx))
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.engine.Close()
}

// ManagedLabelKey returns the label that marks containers created here.
func (c *Client) ManagedLabelKey() string {
	return c.engine.ManagedLabelKey()
}

// CreateContainer creates (but does not start) a container from spec.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (h Handle, err error) {
	start := time.Now()
	defer func() { c.observe("create", start, err) }()

	if err := spec.Validate(); err != nil {
		return Handle{}, err
	}
	cfg, hostCfg := spec.engineConfig()
	logger.Debug().Str("name", spec.Name).Str("image", cfg.Image).Msg("creating container")

	id, createErr := c.engine.ContainerCreate(ctx, spec.Name, cfg, hostCfg)
	if createErr == nil {
		return Handle{ID: id, Name: spec.Name}, nil
	}
	return Handle{}, c.classifyCreate(ctx, spec, createErr)
}

// classifyCreate maps a create failure onto the typed error set.
func (c *Client) classifyCreate(ctx context.Context, spec ContainerSpec, err error) error {
	switch {
	case whail.IsUnreachable(err):
		return &EngineUnreachableError{Err: err}
	case isMissingImage(err):
		return &ImageNotFoundError{Reference: spec.Image.Reference(), Err: err}
	case whail.IsConflict(err):
		conflict := &NameConflictError{Name: spec.Name, Err: err}
		// Structured lookup first; the message is only a fallback.
		summary, found, lookupErr := c.engine.FindContainerByName(ctx, spec.Name)
		switch {
		case lookupErr == nil && found:
			conflict.ExistingID = summary.ID
			conflict.Managed = c.engine.IsManaged(summary.Labels)
		default:
			if lookupErr != nil {
				logger.Debug().Err(lookupErr).Str("name", spec.Name).Msg("conflict lookup failed, parsing engine message")
			}
			conflict.ExistingID = conflictIDFromMessage(whail.Cause(err).Error())
		}
		return conflict
	}
	return err
}

// RemoveContainer removes the container behind h.
func (c *Client) RemoveContainer(ctx context.Context, h Handle, opts RemoveOptions) (err error) {
	start := time.Now()
	defer func() { c.observe("remove", start, err) }()

	target := h.ID
	if target == "" {
		target = h.Name
	}
	if target == "" {
		return errors.New("remove: handle is unset")
	}
	logger.Debug().Str("container", target).Bool("force", opts.Force).Msg("removing container")
	return classify(c.engine.ContainerRemove(ctx, target, opts.Force))
}

// StartContainer starts a created container.
func (c *Client) StartContainer(ctx context.Context, h Handle) (err error) {
	start := time.Now()
	defer func() { c.observe("start", start, err) }()

	if h.IsZero() {
		return errors.New("start: handle is unset")
	}
	logger.Debug().Str("container", h.ShortID()).Msg("starting container")
	return classify(c.engine.ContainerStart(ctx, h.ID))
}

// PullImage pulls reference and returns only after the progress stream has
// reached its terminal event.
func (c *Client) PullImage(ctx context.Context, reference string) (err error) {
	start := time.Now()
	defer func() { c.observe("pull", start, err) }()

	logger.Info().Str("image", reference).Msg("pulling image")
	progress, pullErr := c.engine.ImagePull(ctx, reference, whail.PullOptions{
		Out:        c.pullOut,
		IsTerminal: c.pullTerminal,
	})
	if pullErr != nil {
		return classify(pullErr)
	}
	c.metrics.AddPullBytes(progress.TotalBytes())
	logger.Info().Str("image", reference).Str("summary", progress.Summary()).Msg("image pulled")
	return nil
}

// ExecInContainer runs argv in the container behind h. Combined output is
// written to out as it arrives. A non-zero exit code is a normal result;
// only failures of the exec session itself are errors.
func (c *Client) ExecInContainer(ctx context.Context, h Handle, argv []string, out io.Writer) (res ExecResult, err error) {
	start := time.Now()
	defer func() { c.observe("exec", start, err) }()

	if h.IsZero() {
		return ExecResult{}, errors.New("exec: handle is unset")
	}
	if len(argv) == 0 {
		return ExecResult{}, errors.New("exec: empty command")
	}

	tail := newTailBuffer(ExecOutputTail)
	w := io.Writer(tail)
	if out != nil {
		w = io.MultiWriter(out, tail)
	}

	code, execErr := c.engine.ExecRun(ctx, h.ID, argv, w, w)
	if execErr != nil {
		return ExecResult{}, classify(execErr)
	}
	return ExecResult{ExitCode: code, Output: tail.Bytes()}, nil
}

// FindContainer looks up a container by exact name. It returns a
// *whail.DockerError with Op "find" when none exists.
func (c *Client) FindContainer(ctx context.Context, name string) (h Handle, err error) {
	start := time.Now()
	defer func() { c.observe("find", start, err) }()

	summary, found, findErr := c.engine.FindContainerByName(ctx, name)
	if findErr != nil {
		return Handle{}, classify(findErr)
	}
	if !found {
		return Handle{}, whail.ErrContainerNotFound(name)
	}
	return Handle{ID: summary.ID, Name: name}, nil
}

// IsContainerNotFound reports whether err came from FindContainer finding
// nothing.
func IsContainerNotFound(err error) bool {
	var de *whail.DockerError
	return errors.As(err, &de) && de.Op == "find"
}
