package whailtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"syscall"
	"testing"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/schmitthub/torrentbed/pkg/whail"
)

const (
	// TestLabelPrefix is the label prefix used by test engines.
	TestLabelPrefix = "dev.whailtest"

	// TestManagedLabel is the managed label suffix used by test engines.
	TestManagedLabel = "managed"
)

// TestManagedLabelKey is the full managed label key for test engines.
const TestManagedLabelKey = TestLabelPrefix + "." + TestManagedLabel

// TestEngineOptions returns EngineOptions configured for unit testing.
func TestEngineOptions() whail.EngineOptions {
	return whail.EngineOptions{
		LabelPrefix:  TestLabelPrefix,
		ManagedLabel: TestManagedLabel,
	}
}

// NewFakeAPIClient creates a FakeAPIClient whose Ping succeeds.
// Every other method must be configured by the test.
func NewFakeAPIClient() *FakeAPIClient {
	f := &FakeAPIClient{}
	f.PingFn = func(_ context.Context, _ client.PingOptions) (client.PingResult, error) {
		return client.PingResult{}, nil
	}
	return f
}

// NewTestEngine wraps fake in a whail.Engine using TestEngineOptions.
func NewTestEngine(fake *FakeAPIClient) *whail.Engine {
	return whail.NewFromClient(fake, fake, TestEngineOptions())
}

// --- Engine-shaped errors ---

type errNotFound struct{ msg string }

func (e errNotFound) Error() string { return e.msg }
func (e errNotFound) NotFound()     {}

type errConflict struct{ msg string }

func (e errConflict) Error() string { return e.msg }
func (e errConflict) Conflict()     {}

type errSystem struct{ msg string }

func (e errSystem) Error() string { return e.msg }
func (e errSystem) System()       {}

// ImageNotFoundError mimics the daemon's 404 response to a create whose
// image is not present locally. It satisfies errdefs.IsNotFound.
func ImageNotFoundError(ref string) error {
	return errNotFound{msg: "Error response from daemon: No such image: " + ref}
}

// ContainerNotFoundError mimics the daemon's 404 for an unknown container.
func ContainerNotFoundError(id string) error {
	return errNotFound{msg: "Error response from daemon: No such container: " + id}
}

// NameConflictError mimics the daemon's 409 response when name is taken by
// the container with the given ID. It satisfies errdefs.IsConflict.
func NameConflictError(name, existingID string) error {
	return errConflict{msg: fmt.Sprintf(
		"Error response from daemon: Conflict. The container name \"/%s\" is already in use by container \"%s\". "+
			"You have to remove (or rename) that container to be able to reuse that name.",
		strings.TrimPrefix(name, "/"), existingID)}
}

// ServerError mimics an unclassified 500 from the daemon.
func ServerError(msg string) error {
	return errSystem{msg: "Error response from daemon: " + msg}
}

// ConnectionRefusedError mimics a dial failure on the engine socket.
func ConnectionRefusedError() error {
	return &net.OpError{Op: "dial", Net: "unix", Err: syscall.ECONNREFUSED}
}

// --- Container fixtures ---

// ContainerSummary returns a list entry for a container with the given name.
func ContainerSummary(id, name string, labels map[string]string) container.Summary {
	return container.Summary{
		ID:     id,
		Names:  []string{"/" + strings.TrimPrefix(name, "/")},
		Labels: labels,
	}
}

// ManagedContainerSummary returns a list entry carrying the test managed label.
func ManagedContainerSummary(id, name string) container.Summary {
	return ContainerSummary(id, name, map[string]string{TestManagedLabelKey: "true"})
}

// SetupContainerList makes ContainerList return the given summaries.
func (f *FakeAPIClient) SetupContainerList(items ...container.Summary) {
	f.ContainerListFn = func(_ context.Context, _ client.ContainerListOptions) (client.ContainerListResult, error) {
		return client.ContainerListResult{Items: items}, nil
	}
}

// SetupContainerStart makes ContainerStart succeed.
func (f *FakeAPIClient) SetupContainerStart() {
	f.ContainerStartFn = func(_ context.Context, _ string, _ client.ContainerStartOptions) (client.ContainerStartResult, error) {
		return client.ContainerStartResult{}, nil
	}
}

// SetupContainerRemove makes ContainerRemove succeed.
func (f *FakeAPIClient) SetupContainerRemove() {
	f.ContainerRemoveFn = func(_ context.Context, _ string, _ client.ContainerRemoveOptions) (client.ContainerRemoveResult, error) {
		return client.ContainerRemoveResult{}, nil
	}
}

// --- Image pull fixtures ---

// PullStream encodes msgs as the newline-delimited JSON progress stream the
// daemon returns from an image pull.
func PullStream(msgs ...jsonmessage.JSONMessage) io.ReadCloser {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	for _, m := range msgs {
		_ = enc.Encode(m)
	}
	return io.NopCloser(strings.NewReader(sb.String()))
}

// SuccessfulPullStream is a short pull stream ending in a status line.
func SuccessfulPullStream(ref string) io.ReadCloser {
	return PullStream(
		jsonmessage.JSONMessage{Status: "Pulling from " + ref, ID: "latest"},
		jsonmessage.JSONMessage{Status: "Downloading", ID: "layer1", Progress: &jsonmessage.JSONProgress{Current: 512, Total: 1024}},
		jsonmessage.JSONMessage{Status: "Download complete", ID: "layer1"},
		jsonmessage.JSONMessage{Status: "Status: Downloaded newer image for " + ref},
	)
}

// FailedPullStream is a pull stream whose final message carries an error.
func FailedPullStream(msg string) io.ReadCloser {
	return PullStream(
		jsonmessage.JSONMessage{Status: "Pulling fs layer", ID: "layer1"},
		jsonmessage.JSONMessage{Error: &jsonmessage.JSONError{Message: msg}},
	)
}

// SetupImagePull makes ImagePull return a successful progress stream.
func (f *FakeAPIClient) SetupImagePull() {
	f.ImagePullFn = func(_ context.Context, ref string, _ client.ImagePullOptions) (io.ReadCloser, error) {
		return SuccessfulPullStream(ref), nil
	}
}

// --- Exec fixtures ---

// SetupExecCreate makes ExecCreate return the given exec ID.
func (f *FakeAPIClient) SetupExecCreate(execID string) {
	f.ExecCreateFn = func(_ context.Context, _ string, _ client.ExecCreateOptions) (client.ExecCreateResult, error) {
		return client.ExecCreateResult{ID: execID}, nil
	}
}

// ExecAttachResult returns a hijacked connection that writes stdout and
// stderr as stdcopy-framed streams, then closes.
func ExecAttachResult(stdout, stderr string) client.ExecAttachResult {
	clientConn, serverConn := net.Pipe()
	go func() {
		defer serverConn.Close()
		if stdout != "" {
			_, _ = stdcopy.NewStdWriter(serverConn, stdcopy.Stdout).Write([]byte(stdout))
		}
		if stderr != "" {
			_, _ = stdcopy.NewStdWriter(serverConn, stdcopy.Stderr).Write([]byte(stderr))
		}
	}()
	return client.ExecAttachResult{
		HijackedResponse: client.NewHijackedResponse(clientConn, "application/vnd.docker.multiplexed-stream"),
	}
}

// SetupExecAttachWithOutput makes every ExecAttach stream stdout and stderr.
func (f *FakeAPIClient) SetupExecAttachWithOutput(stdout, stderr string) {
	f.ExecAttachFn = func(_ context.Context, _ string, _ client.ExecAttachOptions) (client.ExecAttachResult, error) {
		return ExecAttachResult(stdout, stderr), nil
	}
}

// SetupExecInspect makes ExecInspect report a completed exec with exitCode.
func (f *FakeAPIClient) SetupExecInspect(exitCode int) {
	f.ExecInspectFn = func(_ context.Context, _ string, _ client.ExecInspectOptions) (client.ExecInspectResult, error) {
		return client.ExecInspectResult{ExitCode: exitCode, Running: false}, nil
	}
}

// SetupExec wires a full exec round trip producing stdout and exitCode.
func (f *FakeAPIClient) SetupExec(stdout string, exitCode int) {
	f.SetupExecCreate("exec-1")
	f.SetupExecAttachWithOutput(stdout, "")
	f.SetupExecInspect(exitCode)
}

// --- Assertions ---

// AssertCalled asserts that method was called at least once.
func AssertCalled(t *testing.T, fake *FakeAPIClient, method string) {
	t.Helper()
	if !slices.Contains(fake.CallLog(), method) {
		t.Errorf("expected %s to be called, calls: %v", method, fake.CallLog())
	}
}

// AssertNotCalled asserts that method was never called.
func AssertNotCalled(t *testing.T, fake *FakeAPIClient, method string) {
	t.Helper()
	if slices.Contains(fake.CallLog(), method) {
		t.Errorf("expected %s not to be called, calls: %v", method, fake.CallLog())
	}
}

// AssertCalledN asserts that method was called exactly n times.
func AssertCalledN(t *testing.T, fake *FakeAPIClient, method string, n int) {
	t.Helper()
	count := 0
	for _, c := range fake.CallLog() {
		if c == method {
			count++
		}
	}
	if count != n {
		t.Errorf("expected %s to be called %d times, got %d (calls: %v)", method, n, count, fake.CallLog())
	}
}

// AssertCallSequence asserts that the recorded calls, with Ping and
// ContainerList removed, equal want exactly.
func AssertCallSequence(t *testing.T, fake *FakeAPIClient, want ...string) {
	t.Helper()
	got := slices.DeleteFunc(fake.CallLog(), func(c string) bool {
		return c == "Ping" || c == "ContainerList"
	})
	if !slices.Equal(got, want) {
		t.Errorf("call sequence mismatch\n  want: %v\n   got: %v", want, got)
	}
}
