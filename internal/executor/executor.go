// Package executor runs commands inside the bound container.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/schmitthub/torrentbed/internal/engine"
	"github.com/schmitthub/torrentbed/internal/iostreams"
)

var (
	// ErrUnsetHandle is returned when no container is bound.
	ErrUnsetHandle = errors.New("no container handle bound")
	// ErrEmptyCommand is returned for an empty argv.
	ErrEmptyCommand = errors.New("empty command")
)

// ExecSessionError reports that the exec session itself failed (create,
// attach or inspect), as opposed to the command exiting non-zero.
type ExecSessionError struct {
	Argv []string
	Err  error
}

func (e *ExecSessionError) Error() string {
	return fmt.Sprintf("exec %q: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *ExecSessionError) Unwrap() error { return e.Err }

// Engine is the slice of the engine adapter the executor needs.
type Engine interface {
	ExecInContainer(ctx context.Context, h engine.Handle, argv []string, out io.Writer) (engine.ExecResult, error)
}

// Executor runs argv in a container and reports its exit status.
type Executor struct {
	engine Engine
	out    io.Writer
	log    iostreams.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithOutput tees command output to w while it runs.
func WithOutput(w io.Writer) Option {
	return func(x *Executor) { x.out = w }
}

// WithLogger sets the logger command output lines are written to at debug
// level.
func WithLogger(l iostreams.Logger) Option {
	return func(x *Executor) { x.log = l }
}

// New returns an Executor backed by eng.
func New(eng Engine, opts ...Option) *Executor {
	nop := zerolog.Nop()
	x := &Executor{engine: eng, log: &nop}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Exec runs argv in the container behind h. A non-zero exit code is a
// normal result; an error means the command could not be run at all.
func (x *Executor) Exec(ctx context.Context, h engine.Handle, argv []string) (engine.ExecResult, error) {
	if h.IsZero() {
		return engine.ExecResult{}, ErrUnsetHandle
	}
	if len(argv) == 0 {
		return engine.ExecResult{}, ErrEmptyCommand
	}

	lines := &lineLogger{log: x.log, container: h.ShortID()}
	w := io.Writer(lines)
	if x.out != nil {
		w = io.MultiWriter(x.out, lines)
	}

	x.log.Debug().Str("container", h.ShortID()).Strs("argv", argv).Msg("exec")
	res, err := x.engine.ExecInContainer(ctx, h, argv, w)
	lines.flush()
	if err != nil {
		return engine.ExecResult{}, &ExecSessionError{Argv: argv, Err: err}
	}
	x.log.Debug().Str("container", h.ShortID()).Int("exit_code", res.ExitCode).Msg("exec finished")
	return res, nil
}

// lineLogger logs each complete line written to it.
type lineLogger struct {
	log       iostreams.Logger
	container string
	partial   []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		l.emit(l.partial[:i])
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	if len(l.partial) > 0 {
		l.emit(l.partial)
		l.partial = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	l.log.Debug().Str("container", l.container).Str("line", strings.TrimRight(string(line), "\r")).Msg("exec output")
}
