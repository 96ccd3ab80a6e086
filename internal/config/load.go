package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every key when read from the environment,
	// e.g. diag_dir -> AGENT_WORKER_DIAG_DIR.
	EnvPrefix = "AGENT_WORKER"

	// EnvConfigFile names an optional YAML/JSON/TOML config file.
	EnvConfigFile = "AGENT_WORKER_CONFIG"
)

// Load builds a Config from defaults, the optional file at path, and the
// environment, in increasing order of precedence. An empty path skips the file.
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.JobCommand = trimEmpty(cfg.JobCommand)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with every known key so that
// AutomaticEnv picks up overrides during Unmarshal.
func newViper() *viper.Viper {
	def := DefaultConfig()
	v := viper.New()

	v.SetDefault("diag_dir", def.DiagDir)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("job_command", []string{})
	v.SetDefault("job_dir", def.JobDir)
	v.SetDefault("stop_timeout", def.StopTimeout)
	v.SetDefault("min_diag_free_mb", def.MinDiagFreeMB)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("metrics_file", def.MetricsFile)
	v.SetDefault("tracing_enabled", def.TracingEnabled)
	v.SetDefault("otlp_endpoint", def.OTLPEndpoint)
	v.SetDefault("environment", def.Environment)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// trimEmpty drops blank entries left behind by a trailing comma in an env value.
func trimEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
