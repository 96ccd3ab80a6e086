package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/agent-worker/internal/logging"
	"github.com/randomizedcoder/agent-worker/internal/preflight"
)

// drainTimeout bounds how long relays may keep running after the job
// exits, e.g. when a grandchild still holds the job's stdout open.
const drainTimeout = 5 * time.Second

// stderrTailLines is how much job stderr is repeated when the job fails.
const stderrTailLines = 10

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("worker: already run")

// Callbacks contains optional callback functions for job events.
type Callbacks struct {
	// OnStateChange is called when the worker state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called when the job process starts.
	OnStart func(pid int)

	// OnExit is called when the job process exits.
	OnExit func(exitCode int, uptime time.Duration)
}

// Config holds configuration for creating a ProcessWorker.
type Config struct {
	Command       []string // job argv; Command[0] is resolved on PATH
	Dir           string   // job working directory; empty inherits ours
	StopTimeout   time.Duration
	DiagDir       string
	MinDiagFreeMB int
	Logger        *slog.Logger
	Observer      Observer
	Callbacks     Callbacks
}

// ProcessWorker runs a job process in its own process group. Bytes read
// from the input pipe are copied to the job's stdin and the job's stdout
// is copied to the output pipe. Job stderr is logged line by line.
type ProcessWorker struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	state   State
	stateMu sync.RWMutex
}

// NewProcessWorker creates a ProcessWorker. It fails if no job command is
// configured.
func NewProcessWorker(cfg Config) (*ProcessWorker, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("worker: job_command is not configured")
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	obs := cfg.Observer
	if obs == nil {
		obs = noopObserver{}
	}
	return &ProcessWorker{
		cfg:      cfg,
		logger:   logger,
		observer: obs,
		state:    StateCreated,
	}, nil
}

// Run executes the job once. ctx cancellation stops the job process group.
//
// Opening a FIFO blocks until the parent opens the other end; both pipes
// are opened concurrently so the parent may open them in either order.
func (w *ProcessWorker) Run(ctx context.Context, pipeIn, pipeOut string) (int, error) {
	if !w.transition(StateCreated, StateStarting) {
		return 1, ErrAlreadyRun
	}
	defer w.setState(StateExited)

	result := preflight.RunAll(ctx, preflight.Params{
		JobCommand:    w.cfg.Command[0],
		PipeIn:        pipeIn,
		PipeOut:       pipeOut,
		DiagDir:       w.cfg.DiagDir,
		MinDiagFreeMB: w.cfg.MinDiagFreeMB,
	})
	preflight.LogResults(w.logger, result)
	if err := result.Err(); err != nil {
		return 1, err
	}

	in, out, err := openPipes(pipeIn, pipeOut)
	if err != nil {
		return 1, err
	}
	defer in.Close()
	defer out.Close()

	return w.runJob(ctx, in, out)
}

func (w *ProcessWorker) runJob(ctx context.Context, in, out *os.File) (int, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return 1, fmt.Errorf("job stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return 1, fmt.Errorf("job stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return 1, fmt.Errorf("job stderr pipe: %w", err)
	}

	cmd := exec.Command(w.cfg.Command[0], w.cfg.Command[1:]...)
	cmd.Dir = w.cfg.Dir
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	configureProcessGroup(cmd)

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		w.logger.Error("failed_to_start_process", "command", w.cfg.Command[0], "error", err)
		return 1, fmt.Errorf("start job %s: %w", w.cfg.Command[0], err)
	}
	// The child owns these ends now; dropping ours makes EOF propagate.
	closeAll(stdinR, stdoutW, stderrW)

	pid := cmd.Process.Pid
	w.setState(StateRunning)
	w.logger.Info("job_started", "pid", pid, "command", w.cfg.Command)
	if w.cfg.Callbacks.OnStart != nil {
		w.cfg.Callbacks.OnStart(pid)
	}

	exited := make(chan struct{})
	stopReq := make(chan string, 1)
	requestStop := func(reason string) {
		select {
		case stopReq <- reason:
		default:
		}
	}

	var stopWg sync.WaitGroup
	stopWg.Add(1)
	go func() {
		defer stopWg.Done()
		select {
		case <-exited:
			return
		case <-ctx.Done():
			w.stop(cmd.Process, "context_cancelled", exited)
		case reason := <-stopReq:
			w.stop(cmd.Process, reason, exited)
		}
	}()

	var (
		relayWg           sync.WaitGroup
		inErr, outErr     error
		bytesIn, bytesOut int64
	)
	stderr := logging.NewStderrHandler(fmt.Sprintf("job-%d", pid), w.logger)

	relayWg.Add(3)
	go func() {
		defer relayWg.Done()
		defer stdinW.Close()
		bytesIn, inErr = relay(stdinW, in, DirectionIn, w.observer)
		// The job may exit without consuming all input.
		if isPipeGone(inErr) {
			inErr = nil
		}
	}()
	go func() {
		defer relayWg.Done()
		bytesOut, outErr = relay(out, stdoutR, DirectionOut, w.observer)
		if outErr != nil {
			if errors.Is(outErr, os.ErrClosed) {
				outErr = nil
				return
			}
			w.logger.Warn("output_pipe_broken", "pid", pid, "error", outErr)
			requestStop("output_pipe_broken")
			stdoutR.Close()
		}
	}()
	go func() {
		defer relayWg.Done()
		stderr.HandleReader(stderrR)
	}()

	waitErr := cmd.Wait()
	uptime := time.Since(startTime)
	close(exited)
	stopWg.Wait()

	// The parent may hold the input pipe open after the job is gone.
	in.Close()
	w.drainRelays(&relayWg, stdoutR, stderrR)
	closeAll(stdoutR, stderrR)

	exitCode := extractExitCode(waitErr)

	w.logger.Info("job_exited",
		"pid", pid,
		"exit_code", exitCode,
		"uptime", uptime.String(),
		"bytes_in", bytesIn,
		"bytes_out", bytesOut,
	)
	if exitCode != 0 {
		if tail := stderr.RecentLines(stderrTailLines); len(tail) > 0 {
			w.logger.Warn("job_stderr_tail", "pid", pid, "lines", tail)
		}
	}
	w.observer.JobExited(exitCode, uptime)
	if w.cfg.Callbacks.OnExit != nil {
		w.cfg.Callbacks.OnExit(exitCode, uptime)
	}

	var errs []error
	if inErr != nil {
		errs = append(errs, fmt.Errorf("relay input pipe to job: %w", inErr))
	}
	if outErr != nil {
		errs = append(errs, fmt.Errorf("relay job output to output pipe: %w", outErr))
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		errs = append(errs, fmt.Errorf("wait for job: %w", waitErr))
	}
	return exitCode, errors.Join(errs...)
}

// stop asks the job's process group to terminate, then kills it if it is
// still alive after StopTimeout.
func (w *ProcessWorker) stop(p *os.Process, reason string, exited <-chan struct{}) {
	w.setState(StateStopping)
	w.logger.Info("job_stopping", "pid", p.Pid, "reason", reason)

	if err := terminateGroup(p); err != nil {
		w.logger.Debug("terminate_failed", "pid", p.Pid, "error", err)
	}

	select {
	case <-exited:
	case <-time.After(w.cfg.StopTimeout):
		w.logger.Warn("force_killing_process", "pid", p.Pid, "timeout", w.cfg.StopTimeout.String())
		if err := killGroup(p); err != nil {
			w.logger.Debug("kill_failed", "pid", p.Pid, "error", err)
		}
	}
}

// drainRelays waits for relay goroutines, closing their sources if they
// do not finish within drainTimeout.
func (w *ProcessWorker) drainRelays(wg *sync.WaitGroup, sources ...*os.File) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		w.logger.Warn("relay_drain_timeout",
			"timeout", drainTimeout.String(),
			"reason", "job output still open after exit",
		)
		closeAll(sources...)
		<-done
	}
}

// State returns the current state of the worker.
func (w *ProcessWorker) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

func (w *ProcessWorker) transition(from, to State) bool {
	w.stateMu.Lock()
	if w.state != from {
		w.stateMu.Unlock()
		return false
	}
	w.state = to
	w.stateMu.Unlock()

	if w.cfg.Callbacks.OnStateChange != nil {
		w.cfg.Callbacks.OnStateChange(from, to)
	}
	return true
}

// setState updates the state and calls the callback if registered.
func (w *ProcessWorker) setState(newState State) {
	w.stateMu.Lock()
	oldState := w.state
	w.state = newState
	w.stateMu.Unlock()

	if w.cfg.Callbacks.OnStateChange != nil && oldState != newState {
		w.cfg.Callbacks.OnStateChange(oldState, newState)
	}
}

// openPipes opens the input endpoint read-only and the output endpoint
// write-only.
func openPipes(pipeIn, pipeOut string) (in, out *os.File, err error) {
	type opened struct {
		f   *os.File
		err error
	}
	inCh := make(chan opened, 1)
	outCh := make(chan opened, 1)

	go func() {
		f, err := os.OpenFile(pipeIn, os.O_RDONLY, 0)
		inCh <- opened{f, err}
	}()
	go func() {
		f, err := os.OpenFile(pipeOut, os.O_WRONLY, 0)
		outCh <- opened{f, err}
	}()

	ri, ro := <-inCh, <-outCh
	if ri.err != nil || ro.err != nil {
		var errs []error
		if ri.err != nil {
			errs = append(errs, fmt.Errorf("open input pipe: %w", ri.err))
		} else {
			ri.f.Close()
		}
		if ro.err != nil {
			errs = append(errs, fmt.Errorf("open output pipe: %w", ro.err))
		} else {
			ro.f.Close()
		}
		return nil, nil, errors.Join(errs...)
	}
	return ri.f, ro.f, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
