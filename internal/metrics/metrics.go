package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Runs     *prometheus.CounterVec // labels: target, outcome=success|failure
	Failures *prometheus.CounterVec // labels: target, stage

	Stops       *prometheus.GaugeVec
	Routes      *prometheus.GaugeVec
	Connections *prometheus.GaugeVec
	LastSuccess *prometheus.GaugeVec // unix seconds

	BuildDuration   prometheus.Histogram
	PersistDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stopgraph_runs_total",
			Help: "Snapshot update runs by outcome.",
		}, []string{"target", "outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stopgraph_failures_total",
			Help: "Failed update runs by the stage that failed.",
		}, []string{"target", "stage"}),
		Stops: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stopgraph_stops",
			Help: "Stops in the last persisted snapshot.",
		}, []string{"target"}),
		Routes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stopgraph_routes",
			Help: "Routes in the last persisted snapshot.",
		}, []string{"target"}),
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stopgraph_connections",
			Help: "Connections in the last persisted snapshot.",
		}, []string{"target"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stopgraph_last_success_timestamp_seconds",
			Help: "Unix time of the last persisted snapshot.",
		}, []string{"target"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stopgraph_build_duration_seconds",
			Help:    "Duration of connection graph builds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stopgraph_persist_duration_seconds",
			Help:    "Duration of snapshot replace transactions.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stopgraph_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stopgraph_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stopgraph_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stopgraph_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stopgraph_refresh_interval_seconds",
			Help: "Scheduled refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Runs, c.Failures,
		c.Stops, c.Routes, c.Connections, c.LastSuccess,
		c.BuildDuration, c.PersistDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.RefreshInterval,
	)

	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

// RunSucceeded records a persisted snapshot and its size.
func (c *Collector) RunSucceeded(target string, routes, stops, connections int, at time.Time) {
	c.Runs.WithLabelValues(target, "success").Inc()
	c.Routes.WithLabelValues(target).Set(float64(routes))
	c.Stops.WithLabelValues(target).Set(float64(stops))
	c.Connections.WithLabelValues(target).Set(float64(connections))
	c.LastSuccess.WithLabelValues(target).Set(float64(at.Unix()))
}

func (c *Collector) RunFailed(target, stage string) {
	c.Runs.WithLabelValues(target, "failure").Inc()
	c.Failures.WithLabelValues(target, stage).Inc()
}

func (c *Collector) BuildObserve(d time.Duration)   { c.BuildDuration.Observe(d.Seconds()) }
func (c *Collector) PersistObserve(d time.Duration) { c.PersistDuration.Observe(d.Seconds()) }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
