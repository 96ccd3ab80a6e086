// Package preflight provides checks run before a job process is started.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/randomizedcoder/agent-worker/internal/hostinfo"
)

// MinFileDescriptors covers the two pipes, three child stdio pipes, the
// trace file, the metrics listener and headroom for the runtime.
const MinFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Params describes the environment a job run needs.
type Params struct {
	JobCommand    string
	PipeIn        string
	PipeOut       string
	DiagDir       string
	MinDiagFreeMB int
}

// CheckError is the failure produced by one failed check.
type CheckError struct {
	Check Check
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("preflight %s: %s", e.Check.Name, e.Check.Message)
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, p Params) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkJobCommand(p.JobCommand))
	add(checkPipeEndpoint("pipe_in", p.PipeIn))
	add(checkPipeEndpoint("pipe_out", p.PipeOut))
	add(checkFileDescriptors(MinFileDescriptors))
	add(checkDiagFreeSpace(ctx, p.DiagDir, p.MinDiagFreeMB))

	return result
}

// Err returns one *CheckError per failed check joined together, or nil.
// Warnings never produce an error.
func (r *Result) Err() error {
	var errs []error
	for _, c := range r.Checks {
		if !c.Passed {
			errs = append(errs, &CheckError{Check: c})
		}
	}
	return errors.Join(errs...)
}

// checkJobCommand verifies the job executable resolves.
func checkJobCommand(name string) Check {
	if name == "" {
		return Check{
			Name:    "job_command",
			Passed:  false,
			Message: "no job command configured",
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "job_command",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", name, err),
		}
	}
	return Check{
		Name:    "job_command",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkPipeEndpoint verifies a pipe identifier names an existing endpoint.
func checkPipeEndpoint(name, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", path, err),
		}
	}
	kind := "file"
	if info.Mode()&os.ModeNamedPipe != 0 {
		kind = "fifo"
	} else if info.IsDir() {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("%s (%s)", path, kind),
	}
}

// checkDiagFreeSpace warns when the diagnostics directory is low on space.
// A full disk degrades tracing but must not stop the job.
func checkDiagFreeSpace(ctx context.Context, dir string, minMB int) Check {
	free, err := hostinfo.DiskFreeMB(ctx, dir)
	if err != nil {
		return Check{
			Name:    "diag_free_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}
	return Check{
		Name:     "diag_free_space",
		Required: minMB,
		Actual:   int(free),
		Passed:   true,
		Warning:  int(free) < minMB,
		Message:  fmt.Sprintf("%d MiB free in %s (want %d)", free, dir, minMB),
	}
}

// LogResults writes one record per check to logger.
func LogResults(logger *slog.Logger, result *Result) {
	for _, c := range result.Checks {
		level := slog.LevelDebug
		switch {
		case !c.Passed:
			level = slog.LevelError
		case c.Warning:
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "preflight_check",
			"check", c.Name,
			"passed", c.Passed,
			"warning", c.Warning,
			"message", c.Message,
			"fix", suggestFix(c),
		)
	}
}

// suggestFix returns a suggestion for fixing a failed or warned check.
func suggestFix(c Check) string {
	if c.Passed && !c.Warning {
		return ""
	}
	switch c.Name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "job_command":
		return "set job_command to an executable on PATH"
	case "pipe_in", "pipe_out":
		return "the parent must create both pipe endpoints before spawning the worker"
	case "diag_free_space":
		return "free space under diag_dir or point diag_dir elsewhere"
	default:
		return "see documentation"
	}
}
