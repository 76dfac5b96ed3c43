package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes, used as the result label of Refreshes.
const (
	RefreshLoaded    = "loaded"
	RefreshUnchanged = "unchanged"
	RefreshFailed    = "failed"
)

type Collector struct {
	reg *prometheus.Registry

	Refreshes       *prometheus.CounterVec // result label: loaded|unchanged|failed
	RefreshDuration prometheus.Histogram
	FeedBytes       prometheus.Gauge

	SnapshotLoadedAt  prometheus.Gauge
	SnapshotTrips     prometheus.Gauge
	SnapshotStopTimes prometheus.Gauge
	FeedRows          *prometheus.GaugeVec // file label

	Queries       *prometheus.CounterVec   // endpoint, status labels
	QueryDuration *prometheus.HistogramVec // endpoint label
	ParseErrors   prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_refreshes_total",
			Help: "Feed refreshes by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gtfs_refresh_duration_seconds",
			Help:    "Time to download, parse and load a feed.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		FeedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfs_feed_bytes",
			Help: "Size of the last downloaded feed archive.",
		}),
		SnapshotLoadedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfs_snapshot_loaded_timestamp_seconds",
			Help: "Unix time the current snapshot was loaded.",
		}),
		SnapshotTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfs_snapshot_trips",
			Help: "Number of trips in the current snapshot.",
		}),
		SnapshotStopTimes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gtfs_snapshot_stop_times",
			Help: "Number of stop times in the current snapshot.",
		}),
		FeedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gtfs_feed_rows",
			Help: "Rows parsed from each file of the current feed.",
		}, []string{"file"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtfs_queries_total",
			Help: "Schedule queries served, by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtfs_query_duration_seconds",
			Help:    "Duration of schedule queries.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"endpoint"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gtfs_departure_parse_errors_total",
			Help: "Malformed departure times encountered while answering queries.",
		}),
	}

	reg.MustRegister(
		c.Refreshes, c.RefreshDuration, c.FeedBytes,
		c.SnapshotLoadedAt, c.SnapshotTrips, c.SnapshotStopTimes, c.FeedRows,
		c.Queries, c.QueryDuration, c.ParseErrors,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
