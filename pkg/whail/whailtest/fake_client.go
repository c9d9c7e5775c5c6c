// Package whailtest provides test doubles for pkg/whail.
package whailtest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/moby/moby/client"

	"github.com/schmitthub/torrentbed/pkg/whail"
)

// FakeAPIClient is a test double for whail.APIClient and whail.ImagePuller
// using the function-field pattern (Docker CLI convention). Each method has a
// corresponding Fn field. If the field is set, the fake delegates to it and
// records the call. If the field is nil, the call panics with
// "not implemented: MethodName".
type FakeAPIClient struct {
	// mu protects Calls from concurrent access.
	mu sync.Mutex

	// Calls records the method names invoked on this fake, in order.
	Calls []string

	// --- Container methods ---
	ContainerCreateFn func(ctx context.Context, opts client.ContainerCreateOptions) (client.ContainerCreateResult, error)
	ContainerStartFn  func(ctx context.Context, container string, opts client.ContainerStartOptions) (client.ContainerStartResult, error)
	ContainerRemoveFn func(ctx context.Context, container string, opts client.ContainerRemoveOptions) (client.ContainerRemoveResult, error)
	ContainerListFn   func(ctx context.Context, opts client.ContainerListOptions) (client.ContainerListResult, error)

	// --- Exec methods ---
	ExecCreateFn  func(ctx context.Context, container string, opts client.ExecCreateOptions) (client.ExecCreateResult, error)
	ExecAttachFn  func(ctx context.Context, execID string, opts client.ExecAttachOptions) (client.ExecAttachResult, error)
	ExecInspectFn func(ctx context.Context, execID string, opts client.ExecInspectOptions) (client.ExecInspectResult, error)

	// --- Image methods ---
	ImagePullFn func(ctx context.Context, ref string, opts client.ImagePullOptions) (io.ReadCloser, error)

	// --- System methods ---
	PingFn  func(ctx context.Context, options client.PingOptions) (client.PingResult, error)
	CloseFn func() error
}

var (
	_ whail.APIClient   = (*FakeAPIClient)(nil)
	_ whail.ImagePuller = (*FakeAPIClient)(nil)
)

// record appends a method name to the call log (thread-safe).
func (f *FakeAPIClient) record(method string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, method)
	f.mu.Unlock()
}

// notImplemented panics with a descriptive message for unset function fields.
func notImplemented(method string) {
	panic(fmt.Sprintf("not implemented: %s (set %sFn on FakeAPIClient)", method, method))
}

// Reset clears the Calls log.
func (f *FakeAPIClient) Reset() {
	f.mu.Lock()
	f.Calls = nil
	f.mu.Unlock()
}

// CallLog returns a copy of the recorded calls.
func (f *FakeAPIClient) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// --- Container method implementations ---

func (f *FakeAPIClient) ContainerCreate(ctx context.Context, opts client.ContainerCreateOptions) (client.ContainerCreateResult, error) {
	if f.ContainerCreateFn == nil {
		notImplemented("ContainerCreate")
	}
	f.record("ContainerCreate")
	return f.ContainerCreateFn(ctx, opts)
}

func (f *FakeAPIClient) ContainerStart(ctx context.Context, container string, opts client.ContainerStartOptions) (client.ContainerStartResult, error) {
	if f.ContainerStartFn == nil {
		notImplemented("ContainerStart")
	}
	f.record("ContainerStart")
	return f.ContainerStartFn(ctx, container, opts)
}

func (f *FakeAPIClient) ContainerRemove(ctx context.Context, container string, opts client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
	if f.ContainerRemoveFn == nil {
		notImplemented("ContainerRemove")
	}
	f.record("ContainerRemove")
	return f.ContainerRemoveFn(ctx, container, opts)
}

func (f *FakeAPIClient) ContainerList(ctx context.Context, opts client.ContainerListOptions) (client.ContainerListResult, error) {
	if f.ContainerListFn == nil {
		notImplemented("ContainerList")
	}
	f.record("ContainerList")
	return f.ContainerListFn(ctx, opts)
}

// --- Exec method implementations ---

func (f *FakeAPIClient) ExecCreate(ctx context.Context, container string, opts client.ExecCreateOptions) (client.ExecCreateResult, error) {
	if f.ExecCreateFn == nil {
		notImplemented("ExecCreate")
	}
	f.record("ExecCreate")
	return f.ExecCreateFn(ctx, container, opts)
}

func (f *FakeAPIClient) ExecAttach(ctx context.Context, execID string, opts client.ExecAttachOptions) (client.ExecAttachResult, error) {
	if f.ExecAttachFn == nil {
		notImplemented("ExecAttach")
	}
	f.record("ExecAttach")
	return f.ExecAttachFn(ctx, execID, opts)
}

func (f *FakeAPIClient) ExecInspect(ctx context.Context, execID string, opts client.ExecInspectOptions) (client.ExecInspectResult, error) {
	if f.ExecInspectFn == nil {
		notImplemented("ExecInspect")
	}
	f.record("ExecInspect")
	return f.ExecInspectFn(ctx, execID, opts)
}

// --- Image method implementations ---

func (f *FakeAPIClient) ImagePull(ctx context.Context, ref string, opts client.ImagePullOptions) (io.ReadCloser, error) {
	if f.ImagePullFn == nil {
		notImplemented("ImagePull")
	}
	f.record("ImagePull")
	return f.ImagePullFn(ctx, ref, opts)
}

// --- System method implementations ---

func (f *FakeAPIClient) Ping(ctx context.Context, options client.PingOptions) (client.PingResult, error) {
	if f.PingFn == nil {
		notImplemented("Ping")
	}
	f.record("Ping")
	return f.PingFn(ctx, options)
}

// Close records the call and delegates to CloseFn when set. Unlike the other
// methods it does not panic when unset, so deferred cleanup stays quiet.
func (f *FakeAPIClient) Close() error {
	f.record("Close")
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}
