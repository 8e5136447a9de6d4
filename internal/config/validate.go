package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig performs cross-field validation on the complete configuration.
// Returns a list of validation errors.
func validateConfig(cfg *Config) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("log level: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("log format: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.HealthPort < 1 || cfg.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("server port: must be between 1 and 65535, got %d", cfg.HealthPort))
	}

	seen := make(map[string]bool)
	var defaults []string
	for _, conn := range cfg.Connections {
		if conn.Name == "" {
			errs = append(errs, "connection: name is required")
			continue
		}
		if seen[conn.Name] {
			errs = append(errs, fmt.Sprintf("duplicate connection name: %q", conn.Name))
		}
		seen[conn.Name] = true

		if err := conn.Validate(); err != nil {
			errs = append(errs, err.Error())
		}

		if conn.Default {
			defaults = append(defaults, conn.Name)
		}
	}

	if len(defaults) > 1 {
		errs = append(errs, fmt.Sprintf("only one connection may be default, got %s", strings.Join(defaults, ", ")))
	}

	return errs
}
