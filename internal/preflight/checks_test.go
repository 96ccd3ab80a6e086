//go:build unix

package preflight

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}

func makeFifo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo unavailable: %v", err)
	}
	return path
}

func findCheck(t *testing.T, r *Result, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in result", name)
	return Check{}
}

func TestRunAll_AllPass(t *testing.T) {
	dir := t.TempDir()
	in := makeFifo(t, dir, "in")
	out := filepath.Join(dir, "out")
	if err := os.WriteFile(out, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	r := RunAll(context.Background(), Params{
		JobCommand: "sh",
		PipeIn:     in,
		PipeOut:    out,
		DiagDir:    filepath.Join(dir, "_diag"),
	})

	for _, name := range []string{"job_command", "pipe_in", "pipe_out", "diag_free_space"} {
		if c := findCheck(t, r, name); !c.Passed {
			t.Errorf("%s failed: %s", name, c.Message)
		}
	}
	if c := findCheck(t, r, "pipe_in"); !strings.Contains(c.Message, "fifo") {
		t.Errorf("pipe_in message = %q, want fifo", c.Message)
	}
	if c := findCheck(t, r, "file_descriptors"); !c.Passed {
		t.Skipf("fd limit too low on this host: %s", c.Message)
	}
	if !r.Passed {
		t.Errorf("RunAll should pass, got %+v", r.Checks)
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestRunAll_Failures(t *testing.T) {
	dir := t.TempDir()

	r := RunAll(context.Background(), Params{
		JobCommand: "definitely-not-a-real-command-xyz",
		PipeIn:     filepath.Join(dir, "missing-in"),
		PipeOut:    dir, // a directory is not a pipe endpoint
		DiagDir:    dir,
	})

	if r.Passed {
		t.Fatal("RunAll should fail")
	}

	err := r.Err()
	if err == nil {
		t.Fatal("Err() should be non-nil")
	}
	multi, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("Err() should be a composite, got %T", err)
	}

	var names []string
	for _, e := range multi.Unwrap() {
		var ce *CheckError
		if !errors.As(e, &ce) {
			t.Fatalf("constituent %T is not *CheckError", e)
		}
		names = append(names, ce.Check.Name)
	}
	want := []string{"job_command", "pipe_in", "pipe_out"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("failed checks = %v, want %v", names, want)
	}
}

func TestRunAll_EmptyJobCommand(t *testing.T) {
	r := RunAll(context.Background(), Params{DiagDir: t.TempDir()})
	c := findCheck(t, r, "job_command")
	if c.Passed {
		t.Error("empty job command should fail")
	}
}

func TestCheckDiagFreeSpace_WarnsOnly(t *testing.T) {
	c := checkDiagFreeSpace(context.Background(), t.TempDir(), 1<<30)
	if !c.Passed {
		t.Error("diag free space must never fail")
	}
	if !c.Warning {
		t.Error("an absurd requirement should warn")
	}
}

func TestCheckError_Error(t *testing.T) {
	err := &CheckError{Check: Check{Name: "pipe_in", Message: "/x: no such file"}}
	if got := err.Error(); got != "preflight pipe_in: /x: no such file" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLogResults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogResults(logger, &Result{Checks: []Check{
		{Name: "job_command", Passed: false, Message: "missing"},
		{Name: "diag_free_space", Passed: true, Warning: true, Message: "low"},
		{Name: "pipe_in", Passed: true, Message: "ok"},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d records, want 3", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"ERROR"`) || !strings.Contains(lines[0], "set job_command") {
		t.Errorf("failed check record = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"WARN"`) {
		t.Errorf("warning record = %s", lines[1])
	}
	if !strings.Contains(lines[2], `"level":"DEBUG"`) || !strings.Contains(lines[2], `"fix":""`) {
		t.Errorf("passed record = %s", lines[2])
	}
}
