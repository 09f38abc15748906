// Package metrics implements metrics collection for the SDK. Every native
// call a session issues is observed here, and an optional push loop exports
// the registry to a Prometheus push gateway when the session config asks
// for it.
package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Config controls the collector. PushGateway and PushInterval mirror the
// session config keys of the same names; an empty gateway disables pushing.
type Config struct {
	Volume       string
	PushGateway  string
	PushInterval time.Duration
}

// Collector tracks native call activity for one session.
type Collector struct {
	registry *prometheus.Registry

	callCounter  *prometheus.CounterVec
	errorCounter *prometheus.CounterVec
	byteCounter  *prometheus.CounterVec
	openFiles    prometheus.Gauge

	logger *slog.Logger
	stop   chan struct{}
}

// NewCollector builds a collector and, when configured, starts the push
// loop. The caller must Close it to stop the loop.
func NewCollector(cfg Config) *Collector {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"volume": cfg.Volume}

	c := &Collector{
		registry: registry,
		callCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "driftfs",
			Subsystem:   "sdk",
			Name:        "native_calls_total",
			Help:        "Native client calls issued, by operation.",
			ConstLabels: labels,
		}, []string{"op"}),
		errorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "driftfs",
			Subsystem:   "sdk",
			Name:        "native_errors_total",
			Help:        "Native client calls that returned an error, by operation.",
			ConstLabels: labels,
		}, []string{"op"}),
		byteCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "driftfs",
			Subsystem:   "sdk",
			Name:        "io_bytes_total",
			Help:        "Bytes moved through the native client, by direction.",
			ConstLabels: labels,
		}, []string{"direction"}),
		openFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "driftfs",
			Subsystem:   "sdk",
			Name:        "open_files",
			Help:        "File handles currently open on this session.",
			ConstLabels: labels,
		}),
		logger: slog.Default().With("component", "metrics", "volume", cfg.Volume),
		stop:   make(chan struct{}),
	}

	registry.MustRegister(c.callCounter, c.errorCounter, c.byteCounter, c.openFiles)

	if cfg.PushGateway != "" {
		interval := cfg.PushInterval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		pusher := push.New(cfg.PushGateway, "driftfs_sdk").
			Gatherer(registry).
			Grouping("volume", cfg.Volume)
		go c.pushLoop(pusher, interval)
	}

	return c
}

// ObserveCall records one native call and whether it failed.
func (c *Collector) ObserveCall(op string, failed bool) {
	c.callCounter.WithLabelValues(op).Inc()
	if failed {
		c.errorCounter.WithLabelValues(op).Inc()
	}
}

// AddBytesRead accounts bytes returned by native reads.
func (c *Collector) AddBytesRead(n int) {
	c.byteCounter.WithLabelValues("read").Add(float64(n))
}

// AddBytesWritten accounts bytes accepted by native writes.
func (c *Collector) AddBytesWritten(n int) {
	c.byteCounter.WithLabelValues("write").Add(float64(n))
}

// FileOpened increments the open-handle gauge.
func (c *Collector) FileOpened() { c.openFiles.Inc() }

// FileClosed decrements the open-handle gauge.
func (c *Collector) FileClosed() { c.openFiles.Dec() }

// Registry exposes the session registry so embedders can mount it on their
// own metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Close stops the push loop, if one is running.
func (c *Collector) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Collector) pushLoop(pusher *push.Pusher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := pusher.Push(); err != nil {
				c.logger.Warn("metrics push failed", "error", err)
			}
		case <-c.stop:
			// Final push so short-lived sessions still report.
			if err := pusher.Push(); err != nil {
				c.logger.Warn("final metrics push failed", "error", err)
			}
			return
		}
	}
}
