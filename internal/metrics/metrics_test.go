package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRuns(t *testing.T) {
	c := NewCollector(30 * time.Minute)
	at := time.Unix(1_700_000_000, 0)

	c.RunSucceeded("intra/rail", 4, 10, 25, at)
	c.RunFailed("intra/rail", "build")
	c.RunFailed("intra/rail", "build")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("intra/rail", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Runs.WithLabelValues("intra/rail", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Failures.WithLabelValues("intra/rail", "build")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Routes.WithLabelValues("intra/rail")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.Stops.WithLabelValues("intra/rail")))
	assert.Equal(t, 25.0, testutil.ToFloat64(c.Connections.WithLabelValues("intra/rail")))
	assert.Equal(t, 1_700_000_000.0, testutil.ToFloat64(c.LastSuccess.WithLabelValues("intra/rail")))
	assert.Equal(t, 1800.0, testutil.ToFloat64(c.RefreshInterval))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector(time.Minute)
	c.BuildObserve(3 * time.Millisecond)
	c.PersistObserve(20 * time.Millisecond)
	c.RunFailed("intra/rail", "persist")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "stopgraph_build_duration_seconds_count 1")
	assert.Contains(t, string(body), "stopgraph_persist_duration_seconds_count 1")
	assert.Contains(t, string(body), `stopgraph_failures_total{stage="persist",target="intra/rail"} 1`)
}
