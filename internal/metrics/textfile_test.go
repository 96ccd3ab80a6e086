package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	c, reg := newTestCollector(t)
	c.FaultReported()
	c.SetExitCode(1)

	path := filepath.Join(t.TempDir(), "worker.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"# TYPE agent_worker_faults_reported_total counter",
		"agent_worker_faults_reported_total 1",
		"agent_worker_exit_code 1",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}

	// No temporary files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestWriteTextfile_MissingDir(t *testing.T) {
	_, reg := newTestCollector(t)
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "worker.prom"), reg)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
