package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence. This allows local development
// with direct values while production uses Docker secrets.
//
// The file contents are trimmed of leading/trailing whitespace.
func getEnvOrFile(directKey, fileKey string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
		// If file read fails, fall through to direct value
	}

	return os.Getenv(directKey)
}

// getEnvWithFileFallback retrieves a value supporting the _FILE suffix pattern.
// Given a base key like "PASSWORD", it checks:
//  1. PASSWORD_FILE - reads file contents if set
//  2. PASSWORD - returns direct value if set
func getEnvWithFileFallback(prefix, key string) string {
	return getEnvOrFile(prefix+key, prefix+key+"_FILE")
}

// readSecretFile reads a secret from disk.
func readSecretFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	return string(content), nil
}

// normalizeName converts a connection name to environment variable format.
// Example: "prod-box" → "PROD_BOX"
func normalizeName(name string) string {
	normalized := strings.ToUpper(name)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, ".", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return normalized
}

// envPrefix creates the environment variable prefix for a connection.
// Example: "prod-box" → "SFTPDECK_PROD_BOX_"
func envPrefix(name string) string {
	return "SFTPDECK_" + normalizeName(name) + "_"
}

// mergeEnv applies SFTPDECK_* environment overrides to cfg.
// Environment variables always take precedence over file config.
func mergeEnv(cfg *Config) []string {
	var errs []string

	if v := getEnv("SFTPDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if v := getEnv("SFTPDECK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if v := getEnv("SFTPDECK_SSH_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil && timeout >= 0 {
			cfg.SSHTimeout = timeout
		} else {
			errs = append(errs, fmt.Sprintf("SFTPDECK_SSH_TIMEOUT: invalid duration %q", v))
		}
	}

	if v := getEnv("SFTPDECK_KNOWN_HOSTS"); v != "" {
		cfg.KnownHosts = splitList(v)
	}

	if v := getEnv("SFTPDECK_KEY_DIR"); v != "" {
		cfg.KeyDir = v
	}

	if v := getEnv("SFTPDECK_HEALTH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("SFTPDECK_HEALTH_PORT: invalid integer %q", v))
		} else {
			cfg.HealthPort = port
		}
	}

	// Per-connection secrets: SFTPDECK_<NAME>_PASSWORD[_FILE] and
	// SFTPDECK_<NAME>_PRIVATE_KEY[_FILE].
	for i := range cfg.Connections {
		conn := &cfg.Connections[i]
		if conn.Name == "" {
			continue
		}
		prefix := envPrefix(conn.Name)
		if v := getEnvWithFileFallback(prefix, "PASSWORD"); v != "" {
			conn.Password = v
		}
		if v := getEnvWithFileFallback(prefix, "PRIVATE_KEY"); v != "" {
			conn.PrivateKey = v
		}
	}

	return errs
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
