// Package host provides the process-wide context a worker process runs in.
//
// A Context hands out shared services (raw output channel, trace sink,
// signal guard, metrics, tracing, the worker) on first use and releases
// every acquired service exactly once, in reverse acquisition order, when
// it is closed.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/agent-worker/internal/buildinfo"
	"github.com/randomizedcoder/agent-worker/internal/config"
	"github.com/randomizedcoder/agent-worker/internal/fault"
	"github.com/randomizedcoder/agent-worker/internal/logging"
	"github.com/randomizedcoder/agent-worker/internal/metrics"
	"github.com/randomizedcoder/agent-worker/internal/signalguard"
	"github.com/randomizedcoder/agent-worker/internal/terminal"
	"github.com/randomizedcoder/agent-worker/internal/tracing"
	"github.com/randomizedcoder/agent-worker/internal/worker"
)

// ServiceName identifies this program in trace files, spans and metrics.
const ServiceName = "agent-worker"

// traceFilePrefix names trace files <prefix>_<timestamp>-utc.log.
const traceFilePrefix = "Worker"

const shutdownTimeout = 5 * time.Second

// Options configures a Context. Zero values select production behaviour.
type Options struct {
	Config *config.Config
	Stdout io.Writer // raw output channel; default os.Stdout
	Stderr io.Writer // last-resort channel used during teardown; default os.Stderr
	Now    func() time.Time

	// OpenSink overrides how the trace sink is opened.
	OpenSink func(dir, prefix string, now time.Time, opts logging.Options) (*logging.Sink, error)

	// NewWorker overrides construction of the worker.
	NewWorker func(c *Context) (worker.Worker, error)
}

type releaser struct {
	name string
	fn   func() error
}

// Context owns the process-scoped services of a worker process.
// It is safe for concurrent use.
type Context struct {
	opts    Options
	cfg     *config.Config
	session string

	// workerMu serialises worker construction; it is never taken under mu.
	workerMu sync.Mutex

	mu          sync.Mutex
	terminal    *terminal.Terminal
	sink        *logging.Sink
	guard       *signalguard.Guard
	collector   *metrics.Collector
	serveTried  bool
	metricsAddr string
	tracer      *tracing.Provider
	worker      worker.Worker
	releasers   []releaser
	closed      bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a Context. No service is acquired until first requested.
func New(opts Options) *Context {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenSink == nil {
		opts.OpenSink = logging.OpenSink
	}
	return &Context{
		opts:    opts,
		cfg:     opts.Config,
		session: uuid.NewString(),
	}
}

// SessionID returns the identifier attached to every trace record and span.
func (c *Context) SessionID() string {
	return c.session
}

// Config returns the process configuration.
func (c *Context) Config() *config.Config {
	return c.cfg
}

// Terminal returns the raw output channel.
func (c *Context) Terminal() *terminal.Terminal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalLocked()
}

func (c *Context) terminalLocked() *terminal.Terminal {
	if c.terminal == nil {
		c.terminal = terminal.New(c.opts.Stdout)
	}
	return c.terminal
}

// Trace returns a trace handle for component. The trace file is opened on
// first use; if it cannot be opened, records go to stderr instead and the
// failure is written once to the raw output channel.
func (c *Context) Trace(component string) *logging.Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinkLocked().Trace(component)
}

func (c *Context) sinkLocked() *logging.Sink {
	if c.sink != nil {
		return c.sink
	}

	opts := logging.Options{
		Format:  c.cfg.LogFormat,
		Level:   c.cfg.LogLevel,
		Session: c.session,
	}
	sink, err := c.opts.OpenSink(c.cfg.DiagDir, traceFilePrefix, c.opts.Now(), opts)
	if err != nil {
		c.terminalLocked().WriteError(fmt.Sprintf("trace sink unavailable, tracing to stderr: %v", err))
		sink = logging.NewSink(c.opts.Stderr, opts)
	}
	c.sink = sink
	c.registerLocked("trace_sink", sink.Close)
	return sink
}

// SignalGuard acquires the interrupt guard on first call.
func (c *Context) SignalGuard() *signalguard.Guard {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.guard == nil {
		c.guard = signalguard.Acquire()
		c.registerLocked("signal_guard", c.guard.Close)
	}
	return c.guard
}

// Metrics returns the metrics collector. On first use it arranges for a
// textfile dump at teardown when metrics_file is set.
func (c *Context) Metrics() *metrics.Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collectorLocked()
}

func (c *Context) collectorLocked() *metrics.Collector {
	if c.collector != nil {
		return c.collector
	}

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		Session: c.session,
	})
	c.collector = collector

	if path := c.cfg.MetricsFile; path != "" {
		c.registerLocked("metrics_textfile", func() error {
			return metrics.WriteTextfile(path, collector.Registry())
		})
	}
	return collector
}

// ServeMetrics starts the HTTP endpoint when metrics_addr is set and returns
// the bound address. It binds at most once; a bind failure is traced and
// "" is returned.
func (c *Context) ServeMetrics() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.serveTried {
		return c.metricsAddr
	}
	c.serveTried = true

	addr := c.cfg.MetricsAddr
	if addr == "" {
		return ""
	}

	trace := c.sinkLocked().Trace("Metrics")
	srv := metrics.NewServer(addr, c.collectorLocked().Registry(), trace.Logger())
	if err := srv.Start(); err != nil {
		trace.Warn("metrics_server_unavailable", "error", err)
		return ""
	}
	c.metricsAddr = srv.Addr()
	c.registerLocked("metrics_server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return c.metricsAddr
}

// Tracer returns the span provider. A provider that fails to initialise
// is replaced by a disabled one.
func (c *Context) Tracer() *tracing.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracer != nil {
		return c.tracer
	}

	trace := c.sinkLocked().Trace("Tracing")
	cfg := tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: buildinfo.Version,
		Environment:    c.cfg.Environment,
		OTLPEndpoint:   c.cfg.OTLPEndpoint,
		Enabled:        c.cfg.TracingEnabled,
		Session:        c.session,
	}
	p, err := tracing.InitTracer(cfg, trace.Logger())
	if err != nil {
		trace.Warn("tracing_unavailable", "error", err)
		cfg.Enabled = false
		p, _ = tracing.InitTracer(cfg, trace.Logger())
	}
	trace.Info("tracing_initialized", "enabled", p.Enabled(), "endpoint", cfg.OTLPEndpoint)
	c.tracer = p
	c.registerLocked("tracer", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return p.Shutdown(ctx)
	})
	return p
}

// Worker returns the worker, constructing it on first success. Concurrent
// callers wait for a construction in progress rather than starting another.
func (c *Context) Worker() (worker.Worker, error) {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w != nil {
		return w, nil
	}

	// Construction takes c.mu itself (trace, metrics), so only workerMu is held.
	var err error
	if c.opts.NewWorker != nil {
		w, err = c.opts.NewWorker(c)
	} else {
		w, err = c.newProcessWorker()
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.worker = w
	c.mu.Unlock()
	return w, nil
}

func (c *Context) newProcessWorker() (worker.Worker, error) {
	pw, err := worker.NewProcessWorker(worker.Config{
		Command:       c.cfg.JobCommand,
		Dir:           c.cfg.JobDir,
		StopTimeout:   c.cfg.StopTimeout,
		DiagDir:       c.cfg.DiagDir,
		MinDiagFreeMB: c.cfg.MinDiagFreeMB,
		Logger:        c.Trace("Worker").Logger(),
		Observer:      c.Metrics(),
	})
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// Register adds a release function run by Close. Functions registered
// after Close run immediately.
func (c *Context) Register(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerLocked(name, fn)
}

func (c *Context) registerLocked(name string, fn func() error) {
	r := releaser{name: name, fn: fn}
	if c.closed {
		if err := c.release(r); err != nil {
			c.notify(r.name, err)
		}
		return
	}
	c.releasers = append(c.releasers, r)
}

// Close releases every acquired service in reverse acquisition order.
// Each release runs exactly once; a failing or panicking release does not
// stop the others. Failures are written to stderr and returned joined for
// observation. Close never panics and is safe to call more than once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		releasers := c.releasers
		c.releasers = nil
		c.mu.Unlock()

		var errs []error
		for i := len(releasers) - 1; i >= 0; i-- {
			r := releasers[i]
			if err := c.release(r); err != nil {
				c.notify(r.name, err)
				errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func (c *Context) release(r releaser) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fault.Recovered(v)
		}
	}()
	return r.fn()
}

// notify writes a teardown failure to stderr. Nothing else is left to
// report to, so its own failure is dropped.
func (c *Context) notify(name string, err error) {
	defer func() { _ = recover() }()
	fmt.Fprintf(c.opts.Stderr, "teardown %s: %v\n", name, err)
}
