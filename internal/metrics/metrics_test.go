package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveEngineOp("create", time.Now(), "other", errors.New("x"))
	m.RecordOutcome("created")
	m.RecordProbe("healthy")
	m.SetRunning(true)
	m.AddPullBytes(10)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile("ignored"))
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveEngineOp("create", time.Now(), "", nil)
	m.ObserveEngineOp("create", time.Now(), "name_conflict", errors.New("conflict"))
	m.RecordOutcome("recovered_from_conflict")
	m.RecordProbe("unhealthy")
	m.RecordProbe("healthy")
	m.SetRunning(true)
	m.AddPullBytes(2048)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineErrors.WithLabelValues("create", "name_conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("recovered_from_conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.pullBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.engineOps))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordOutcome("created")

	path := filepath.Join(t.TempDir(), "torrentbed.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `torrentbed_reconcile_outcomes_total{kind="created"} 1`))
}
