package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.Refreshes.WithLabelValues(RefreshLoaded).Inc()
	c.Refreshes.WithLabelValues(RefreshUnchanged).Inc()
	c.Refreshes.WithLabelValues(RefreshUnchanged).Inc()
	c.ParseErrors.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Refreshes.WithLabelValues(RefreshLoaded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Refreshes.WithLabelValues(RefreshUnchanged)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ParseErrors))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.SnapshotTrips.Set(42)
	c.FeedRows.WithLabelValues("stop_times.txt").Set(1234)
	c.Queries.WithLabelValues("departures", "200").Inc()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gtfs_snapshot_trips 42")
	assert.Contains(t, string(body), `gtfs_feed_rows{file="stop_times.txt"} 1234`)
	assert.Contains(t, string(body), `gtfs_queries_total{endpoint="departures",status="200"} 1`)
}
