// Package metrics provides Prometheus metrics for a single worker process.
//
// Each process owns its own registry. Metrics are exposed over HTTP when
// metrics_addr is set, and dumped in the text exposition format to
// metrics_file at teardown so a node_exporter textfile collector can pick
// up the numbers of short-lived workers.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "agent_worker"

// Pipe directions used as the "direction" label.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Collector manages all Prometheus metrics for the worker process.
type Collector struct {
	registry *prometheus.Registry

	info             *prometheus.GaugeVec
	faultsReported   prometheus.Counter
	traceFailures    prometheus.Counter
	rawWriteFailures prometheus.Counter
	exitCode         prometheus.Gauge

	pipeBytes      *prometheus.CounterVec
	pipeWrites     *prometheus.CounterVec
	writeLatency   prometheus.Histogram
	writeLatencyP  *prometheus.GaugeVec
	jobExits       *prometheus.CounterVec
	jobRunDuration prometheus.Gauge

	mu             sync.Mutex
	latencyDigest  *tdigest.TDigest
	writes         int64
	bytes          map[string]int64
	lastJobCode    int
	lastJobUptime  time.Duration
	interruptsOnce sync.Once
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Commit  string
	Session string
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.NewRegistry())
}

// NewCollectorWithRegistry creates a collector registering into registry.
// The Go runtime and process collectors are registered alongside.
func NewCollectorWithRegistry(cfg CollectorConfig, registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,

		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Build and session information (value always 1)",
		}, []string{"version", "commit", "session"}),

		faultsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_reported_total",
			Help:      "Failure constituents reported to the diagnostic channels",
		}),
		traceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_failures_total",
			Help:      "Failures while writing a failure record to the trace sink",
		}),
		rawWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_write_failures_total",
			Help:      "Failures while writing to the raw output channel",
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exit_code",
			Help:      "Exit status the process is about to return (-1 until known)",
		}),

		pipeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipe_bytes_total",
			Help:      "Bytes relayed through the job pipes",
		}, []string{"direction"}),
		pipeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipe_writes_total",
			Help:      "Write calls made while relaying the job pipes",
		}, []string{"direction"}),
		writeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipe_write_latency_seconds",
			Help:      "Latency of individual pipe writes",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us .. ~2.6s
		}),
		writeLatencyP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipe_write_latency_quantile_seconds",
			Help:      "Pipe write latency quantiles from a t-digest",
		}, []string{"quantile"}),
		jobExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_exits_total",
			Help:      "Job process exits by category",
		}, []string{"category"}),
		jobRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_run_duration_seconds",
			Help:      "Wall time of the last job run",
		}),

		latencyDigest: tdigest.NewWithCompression(100),
		bytes:         make(map[string]int64),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		c.info,
		c.faultsReported,
		c.traceFailures,
		c.rawWriteFailures,
		c.exitCode,
		c.pipeBytes,
		c.pipeWrites,
		c.writeLatency,
		c.writeLatencyP,
		c.jobExits,
		c.jobRunDuration,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Commit, cfg.Session).Set(1)
	c.exitCode.Set(-1)

	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// Fault reporting
// =============================================================================

// FaultReported counts one reported failure constituent.
func (c *Collector) FaultReported() { c.faultsReported.Inc() }

// TraceFailed counts one failed trace write.
func (c *Collector) TraceFailed() { c.traceFailures.Inc() }

// RawWriteFailed counts one failed raw channel write.
func (c *Collector) RawWriteFailed() { c.rawWriteFailures.Inc() }

// SetExitCode records the status the process will exit with.
func (c *Collector) SetExitCode(code int) {
	c.exitCode.Set(float64(code))
}

// ObserveInterrupts exposes the absorbed interrupt count read from fn.
// Only the first call registers; later calls are ignored.
func (c *Collector) ObserveInterrupts(fn func() int64) {
	c.interruptsOnce.Do(func() {
		c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_absorbed_total",
			Help:      "Interactive interrupts absorbed by the signal guard",
		}, func() float64 { return float64(fn()) }))
	})
}

// =============================================================================
// Job relay
// =============================================================================

// PipeWrite records one write of n bytes to the pipe in direction.
func (c *Collector) PipeWrite(direction string, n int, d time.Duration) {
	c.pipeBytes.WithLabelValues(direction).Add(float64(n))
	c.pipeWrites.WithLabelValues(direction).Inc()
	c.writeLatency.Observe(d.Seconds())

	c.mu.Lock()
	c.latencyDigest.Add(d.Seconds(), 1)
	c.writes++
	c.bytes[direction] += int64(n)
	c.mu.Unlock()
}

// JobExited records a job process exit.
func (c *Collector) JobExited(exitCode int, uptime time.Duration) {
	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	c.jobExits.WithLabelValues(category).Inc()
	c.jobRunDuration.Set(uptime.Seconds())

	c.mu.Lock()
	c.lastJobCode = exitCode
	c.lastJobUptime = uptime
	c.mu.Unlock()

	c.publishQuantiles()
}

func (c *Collector) publishQuantiles() {
	s := c.GenerateSummary()
	if s.Writes == 0 {
		return
	}
	c.writeLatencyP.WithLabelValues("0.5").Set(s.WriteLatencyP50.Seconds())
	c.writeLatencyP.WithLabelValues("0.95").Set(s.WriteLatencyP95.Seconds())
	c.writeLatencyP.WithLabelValues("0.99").Set(s.WriteLatencyP99.Seconds())
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the relay numbers traced once the worker returns.
type Summary struct {
	Writes          int64
	BytesIn         int64
	BytesOut        int64
	WriteLatencyP50 time.Duration
	WriteLatencyP95 time.Duration
	WriteLatencyP99 time.Duration
	JobExitCode     int
	JobUptime       time.Duration
}

// GenerateSummary returns a snapshot of the relay statistics.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Writes:      c.writes,
		BytesIn:     c.bytes[DirectionIn],
		BytesOut:    c.bytes[DirectionOut],
		JobExitCode: c.lastJobCode,
		JobUptime:   c.lastJobUptime,
	}
	if c.writes > 0 {
		s.WriteLatencyP50 = seconds(c.latencyDigest.Quantile(0.50))
		s.WriteLatencyP95 = seconds(c.latencyDigest.Quantile(0.95))
		s.WriteLatencyP99 = seconds(c.latencyDigest.Quantile(0.99))
	}
	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
