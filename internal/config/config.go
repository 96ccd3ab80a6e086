// Package config provides configuration management for agent-worker.
//
// The positional invocation contract (mode, input pipe, output pipe) is owned by
// the parent orchestrator and is never part of this configuration. Everything
// here comes from defaults, an optional config file, and AGENT_WORKER_* env vars.
package config

import "time"

// Config holds all tunables for a worker process.
type Config struct {
	// Diagnostics
	DiagDir   string `mapstructure:"diag_dir" json:"diag_dir"`
	LogFormat string `mapstructure:"log_format" json:"log_format"` // json, text
	LogLevel  string `mapstructure:"log_level" json:"log_level"`

	// Job
	JobCommand  []string      `mapstructure:"job_command" json:"job_command"`
	JobDir      string        `mapstructure:"job_dir" json:"job_dir"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" json:"stop_timeout"`

	// Preflight
	MinDiagFreeMB int `mapstructure:"min_diag_free_mb" json:"min_diag_free_mb"`

	// Observability
	MetricsAddr    string `mapstructure:"metrics_addr" json:"metrics_addr"` // "" = disabled
	MetricsFile    string `mapstructure:"metrics_file" json:"metrics_file"` // "" = disabled
	TracingEnabled bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment    string `mapstructure:"environment" json:"environment"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DiagDir:   "_diag",
		LogFormat: "json",
		LogLevel:  "info",

		JobCommand:  nil,
		StopTimeout: 10 * time.Second,

		MinDiagFreeMB: 64,

		MetricsAddr:    "",
		MetricsFile:    "",
		TracingEnabled: false,
		OTLPEndpoint:   "localhost:4318",
		Environment:    "production",
	}
}
