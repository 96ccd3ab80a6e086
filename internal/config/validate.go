package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or the joined set of problems.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.DiagDir) == "" {
		errs = append(errs, ValidationError{
			Field:   "diag_dir",
			Message: "must not be empty",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.LogFormat)] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	}

	if cfg.MinDiagFreeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "min_diag_free_mb",
			Message: "must not be negative",
		})
	}

	if cfg.TracingEnabled && cfg.OTLPEndpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "otlp_endpoint",
			Message: "required when tracing_enabled is set",
		})
	}

	if strings.Contains(cfg.MetricsAddr, "://") {
		errs = append(errs, ValidationError{
			Field:   "metrics_addr",
			Message: "must be host:port, not a URL",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
