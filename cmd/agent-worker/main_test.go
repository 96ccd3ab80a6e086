package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_ConfigErrorReachesRawChannel(t *testing.T) {
	t.Setenv("AGENT_WORKER_LOG_FORMAT", "xml")
	var stdout, stderr bytes.Buffer

	if code := run([]string{"spawnclient", "in", "out"}, &stdout, &stderr); code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "Configuration error") || !strings.Contains(stdout.String(), "log_format") {
		t.Errorf("raw channel should carry the configuration error, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "log_format") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_ContractErrorExitsOne(t *testing.T) {
	t.Setenv("AGENT_WORKER_DIAG_DIR", filepath.Join(t.TempDir(), "_diag"))

	tests := []struct {
		name string
		args []string
	}{
		{"wrong mode", []string{"run", "in-42", "out-42"}},
		{"version flag", []string{"--version"}},
		{"short version flag", []string{"-version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("run(%q) = %d, want 1", tt.args, code)
			}
			if !strings.Contains(stdout.String(), "invalid argument") {
				t.Errorf("raw channel should carry the contract error, got %q", stdout.String())
			}
		})
	}
}
