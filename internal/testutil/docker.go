// Package testutil holds helpers for tests that talk to a real container
// engine.
package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/schmitthub/torrentbed/internal/engine"
)

// IntegrationEnv must be "1" for engine-backed tests to run.
const IntegrationEnv = "TORRENTBED_INTEGRATION_TESTS"

// Timeout constants for different test scenarios.
const (
	// DefaultReadyTimeout covers a first start, including an image pull.
	DefaultReadyTimeout = 2 * time.Minute

	// CIReadyTimeout is the timeout for CI environments which may be slower.
	CIReadyTimeout = 4 * time.Minute
)

// RequireDocker skips the test unless integration tests are enabled and an
// engine answers a ping.
func RequireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("set %s=1 to run engine-backed tests", IntegrationEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := engine.Connect(ctx, engine.Options{})
	if err != nil {
		t.Skipf("container engine is not available: %v", err)
	}
	_ = c.Close()
}

// NewTestClient connects to the engine from the environment with a fresh
// run ID. The client is closed when the test completes.
func NewTestClient(t *testing.T) *engine.Client {
	t.Helper()
	RequireDocker(t)

	c, err := engine.Connect(context.Background(), engine.Options{RunID: "test-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("failed to connect to the engine: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ReadyTimeout returns how long tests wait for a container to become
// healthy. TORRENTBED_READY_TIMEOUT (seconds) overrides it.
func ReadyTimeout() time.Duration {
	if v := os.Getenv("TORRENTBED_READY_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		return CIReadyTimeout
	}
	return DefaultReadyTimeout
}

// UniqueName returns a container name that will not collide with other
// test runs.
func UniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
