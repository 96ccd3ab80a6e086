package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// failingWriter simulates a trace destination on a full disk.
type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestOpenSink_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "_diag")
	now := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

	sink, err := OpenSink(dir, "Worker", now, Options{Format: "json", Level: "info"})
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	defer sink.Close()

	want := filepath.Join(dir, "Worker_20261015-083000-utc.log")
	if sink.Path() != want {
		t.Errorf("Path() = %q, want %q", sink.Path(), want)
	}

	sink.Trace("Program").Info("worker_starting", "version", "dev")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "worker_starting") {
		t.Errorf("trace file missing record: %s", data)
	}
}

func TestOpenSink_BadDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenSink(filepath.Join(file, "_diag"), "Worker", time.Now(), Options{})
	if err == nil {
		t.Fatal("expected error when diag dir cannot be created")
	}
}

func TestSink_TraceAttributes(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, Options{Format: "json", Level: "info", Session: "abc-123"})

	sink.Trace("Program").Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON record %q: %v", buf.String(), err)
	}
	if rec["component"] != "Program" {
		t.Errorf("component = %v", rec["component"])
	}
	if rec["session"] != "abc-123" {
		t.Errorf("session = %v", rec["session"])
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestTrace_Error_WritesRecord(t *testing.T) {
	var buf bytes.Buffer
	trace := NewSink(&buf, Options{Format: "json"}).Trace("Program")

	if err := trace.Error(errors.New("pipe closed"), "detail", "full text"); err != nil {
		t.Fatalf("Error returned %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON record %q: %v", buf.String(), err)
	}
	if rec["level"] != "ERROR" {
		t.Errorf("level = %v", rec["level"])
	}
	if rec["error"] != "pipe closed" {
		t.Errorf("error = %v", rec["error"])
	}
	if rec["error_type"] != "*errors.errorString" {
		t.Errorf("error_type = %v", rec["error_type"])
	}
	if rec["detail"] != "full text" {
		t.Errorf("detail = %v", rec["detail"])
	}
}

func TestTrace_Error_ReturnsSinkFailure(t *testing.T) {
	sink := NewSink(failingWriter{err: syscall.ENOSPC}, Options{})
	trace := sink.Trace("Program")

	err := trace.Error(errors.New("boom"))
	if !errors.Is(err, syscall.ENOSPC) {
		t.Fatalf("Error() = %v, want ENOSPC", err)
	}

	// Best-effort methods must not panic on the same broken sink.
	trace.Info("ignored")
	trace.Warn("ignored")
	trace.Debug("ignored")
}

func TestTrace_Error_AfterClose(t *testing.T) {
	sink, err := OpenSink(t.TempDir(), "Worker", time.Now(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	trace := sink.Trace("Program")

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if err := trace.Error(errors.New("late")); err == nil {
		t.Error("writing to a closed sink should fail")
	}
}

func TestTrace_Component(t *testing.T) {
	var buf bytes.Buffer
	trace := NewSink(&buf, Options{Format: "json"}).Trace("ProcessWorker")

	trace.Logger().Info("job_started")

	if !strings.Contains(buf.String(), `"component":"ProcessWorker"`) {
		t.Errorf("records should carry the component:\n%s", buf.String())
	}
}
