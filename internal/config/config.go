// Package config handles loading and validation of sftpdeck configuration
// from a profiles file and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
)

// Configuration defaults.
const (
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultSSHTimeout = 30 * time.Second
	DefaultHealthPort = 8080
)

// Config holds the runtime configuration.
type Config struct {
	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// SSH settings
	SSHTimeout time.Duration // connect + handshake + auth
	KnownHosts []string      // known_hosts files; empty disables verification
	KeyDir     string        // where private keys are materialized; empty uses the OS temp dir

	// Probe server
	HealthPort int

	// Connection profiles
	Connections []connection.Connection
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		SSHTimeout: DefaultSSHTimeout,
		HealthPort: DefaultHealthPort,
	}
}

// Load builds the configuration from the file at path (or SFTPDECK_CONFIG
// when path is empty) and SFTPDECK_* environment overrides. All problems are
// collected and returned together as a *ValidationError.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
	}

	cfg := defaults()
	var errs []string

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			errs = append(errs, "config file: "+err.Error())
		} else {
			slog.Debug("loaded configuration from file", slog.String("path", path))
			errs = append(errs, fileCfg.apply(cfg, path)...)
		}
	}

	errs = append(errs, mergeEnv(cfg)...)
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return cfg, nil
}

// Connection returns the profile with the given name or ID.
func (c *Config) Connection(name string) (connection.Connection, error) {
	for _, conn := range c.Connections {
		if conn.Name == name || (conn.ID != 0 && strconv.Itoa(conn.ID) == name) {
			return conn, nil
		}
	}
	return connection.Connection{}, fmt.Errorf("connection %q not found", name)
}

// Default returns the profile flagged as default.
func (c *Config) Default() (connection.Connection, bool) {
	for _, conn := range c.Connections {
		if conn.Default {
			return conn, true
		}
	}
	return connection.Connection{}, false
}
