// Package bootstrap is the top-level flow of a spawned worker process:
// hold the interrupt, validate the invocation, run the worker, report any
// escaping failure, and tear everything down on every path.
package bootstrap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randomizedcoder/agent-worker/internal/buildinfo"
	"github.com/randomizedcoder/agent-worker/internal/fault"
	"github.com/randomizedcoder/agent-worker/internal/host"
	"github.com/randomizedcoder/agent-worker/internal/hostinfo"
	"github.com/randomizedcoder/agent-worker/internal/invocation"
	"github.com/randomizedcoder/agent-worker/internal/logging"
	"github.com/randomizedcoder/agent-worker/internal/tracing"
	"github.com/randomizedcoder/agent-worker/internal/worker"
)

// Options configures Run.
type Options struct {
	// Host is the process context. Run closes it before returning.
	Host *host.Context

	// OnStateChange is called on every process state transition.
	OnStateChange func(oldState, newState State)
}

type runner struct {
	hc            *host.Context
	trace         *logging.Trace
	reporter      *fault.Reporter
	onStateChange func(oldState, newState State)
	state         State
}

// Run executes the worker process flow and returns the exit code: the
// worker's status on success, fault.ExitFailure on any escaping failure.
// opts.Host is closed before Run returns.
func Run(ctx context.Context, args []string, opts Options) int {
	hc := opts.Host
	if hc == nil {
		hc = host.New(host.Options{})
	}

	r := &runner{
		hc:            hc,
		onStateChange: opts.OnStateChange,
		state:         StateStarting,
	}
	defer func() {
		hc.Close()
		r.setState(StateTornDown)
	}()

	guard := hc.SignalGuard()
	collector := hc.Metrics()
	collector.ObserveInterrupts(guard.Absorbed)

	r.trace = hc.Trace("Program")
	r.reporter = fault.NewReporter(hc.Terminal(), r.trace, collector)

	code := r.run(ctx, args)
	collector.SetExitCode(code)
	r.trace.Info("worker_exiting", "exit_code", code, "state", r.state.String())
	return code
}

func (r *runner) run(ctx context.Context, args []string) (code int) {
	defer func() {
		if v := recover(); v != nil {
			code = r.fail(fault.Recovered(v))
		}
	}()

	r.logStartupFacts(ctx)

	inv, err := invocation.Parse(args)
	if err != nil {
		return r.fail(err)
	}
	r.setState(StateContractValidated)

	if addr := r.hc.ServeMetrics(); addr != "" {
		r.trace.Info("metrics_serving", "addr", addr)
	}

	w, err := r.hc.Worker()
	if err != nil {
		return r.fail(fmt.Errorf("create worker: %w", err))
	}

	ctx, span := r.hc.Tracer().StartSpan(ctx, "worker.run",
		attribute.String("worker.pipe_in", inv.PipeIn),
		attribute.String("worker.pipe_out", inv.PipeOut),
		attribute.String("session.id", r.hc.SessionID()),
	)
	defer span.End()

	r.setState(StateRunning)
	r.trace.Info("worker_running", "pipe_in", inv.PipeIn, "pipe_out", inv.PipeOut)

	status, err := runWorker(ctx, w, inv)
	r.logRelaySummary()
	if err != nil {
		for _, f := range fault.Collect(err) {
			tracing.SetError(ctx, f)
		}
		return r.fail(err)
	}

	span.SetAttributes(attribute.Int("worker.status", status))
	tracing.AddEvent(ctx, "worker_finished", attribute.Int("worker.status", status))
	r.setState(StateSucceeded)
	r.trace.Info("worker_finished", "status", status)
	return status
}

// runWorker converts a panic escaping the worker into a failure.
func runWorker(ctx context.Context, w worker.Worker, inv invocation.Invocation) (status int, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fault.Recovered(v)
		}
	}()
	return w.Run(ctx, inv.PipeIn, inv.PipeOut)
}

func (r *runner) fail(err error) int {
	r.setState(StateFaulted)
	return r.reporter.Report(err)
}

func (r *runner) logStartupFacts(ctx context.Context) {
	facts := hostinfo.Collect(ctx)
	r.trace.Info("startup_facts",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"culture", facts.Locale.String(),
		"ui_culture", facts.UILocale.String(),
		"pid", facts.PID,
		"parent_pid", facts.ParentPID,
		"parent_name", facts.ParentName,
	)
}

func (r *runner) logRelaySummary() {
	s := r.hc.Metrics().GenerateSummary()
	r.trace.Info("relay_summary",
		"writes", s.Writes,
		"bytes_in", s.BytesIn,
		"bytes_out", s.BytesOut,
		"write_latency_p50", s.WriteLatencyP50,
		"write_latency_p95", s.WriteLatencyP95,
		"write_latency_p99", s.WriteLatencyP99,
		"job_exit_code", s.JobExitCode,
		"job_uptime", s.JobUptime,
	)
}

func (r *runner) setState(newState State) {
	oldState := r.state
	if oldState == newState {
		return
	}
	r.state = newState

	if r.trace != nil {
		r.trace.Debug("state_change", "from", oldState.String(), "to", newState.String())
	}
	if r.onStateChange != nil {
		r.onStateChange(oldState, newState)
	}
}
