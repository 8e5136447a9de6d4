package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
)

// FileConfig represents the configuration file structure.
// The same layout is accepted as YAML or TOML.
type FileConfig struct {
	// Logging configuration
	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging"`

	// SSH client settings
	SSH *FileSSHConfig `yaml:"ssh,omitempty" toml:"ssh"`

	// Health and metrics server
	Server *FileServerConfig `yaml:"server,omitempty" toml:"server"`

	// Connection profiles
	Connections []FileConnectionConfig `yaml:"connections,omitempty" toml:"connections"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileSSHConfig holds SSH client settings.
type FileSSHConfig struct {
	Timeout    string   `yaml:"timeout,omitempty" toml:"timeout"`         // Go duration format (e.g., "10s")
	KnownHosts []string `yaml:"known_hosts,omitempty" toml:"known_hosts"` // known_hosts files
	KeyDir     string   `yaml:"key_dir,omitempty" toml:"key_dir"`         // temp key directory
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	Port int `yaml:"port,omitempty" toml:"port"` // Port for health/metrics endpoints
}

// FileConnectionConfig holds one connection profile.
type FileConnectionConfig struct {
	ID             int    `yaml:"id,omitempty" toml:"id"`
	Name           string `yaml:"name" toml:"name"`
	Host           string `yaml:"host" toml:"host"`
	Port           int    `yaml:"port,omitempty" toml:"port"`
	Username       string `yaml:"username" toml:"username"`
	Password       string `yaml:"password,omitempty" toml:"password"`
	PasswordFile   string `yaml:"password_file,omitempty" toml:"password_file"` // read from disk, trimmed
	PrivateKey     string `yaml:"private_key,omitempty" toml:"private_key"`
	PrivateKeyFile string `yaml:"private_key_file,omitempty" toml:"private_key_file"` // read from disk verbatim
	RemotePath     string `yaml:"remote_path,omitempty" toml:"remote_path"`
	LocalPath      string `yaml:"local_path,omitempty" toml:"local_path"`
	Default        bool   `yaml:"default,omitempty" toml:"default"`
	Protocol       string `yaml:"protocol,omitempty" toml:"protocol"` // sftp (default), ftp
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in all string fields.
// Inline private keys are left untouched.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if c.SSH != nil {
		c.SSH.Timeout = InterpolateEnvVars(c.SSH.Timeout)
		c.SSH.KeyDir = InterpolateEnvVars(c.SSH.KeyDir)
		for i := range c.SSH.KnownHosts {
			c.SSH.KnownHosts[i] = InterpolateEnvVars(c.SSH.KnownHosts[i])
		}
	}

	for i := range c.Connections {
		p := &c.Connections[i]
		p.Name = InterpolateEnvVars(p.Name)
		p.Host = InterpolateEnvVars(p.Host)
		p.Username = InterpolateEnvVars(p.Username)
		p.Password = InterpolateEnvVars(p.Password)
		p.PasswordFile = InterpolateEnvVars(p.PasswordFile)
		p.PrivateKeyFile = InterpolateEnvVars(p.PrivateKeyFile)
		p.RemotePath = InterpolateEnvVars(p.RemotePath)
		p.LocalPath = InterpolateEnvVars(p.LocalPath)
		p.Protocol = InterpolateEnvVars(p.Protocol)
	}
}

// LoadFile reads and parses a configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
// Environment variables in ${VAR} format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}

// apply copies file values onto cfg. Relative secret file paths are resolved
// against the directory of the config file at path.
func (c *FileConfig) apply(cfg *Config, path string) []string {
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if c.SSH != nil {
		if c.SSH.Timeout != "" {
			timeout, err := time.ParseDuration(c.SSH.Timeout)
			if err != nil || timeout < 0 {
				errs = append(errs, fmt.Sprintf("ssh.timeout: invalid duration %q (use format like 10s, 1m)", c.SSH.Timeout))
			} else {
				cfg.SSHTimeout = timeout
			}
		}
		if len(c.SSH.KnownHosts) > 0 {
			cfg.KnownHosts = c.SSH.KnownHosts
		}
		if c.SSH.KeyDir != "" {
			cfg.KeyDir = c.SSH.KeyDir
		}
	}

	if c.Server != nil && c.Server.Port != 0 {
		cfg.HealthPort = c.Server.Port
	}

	baseDir := filepath.Dir(path)
	for _, fc := range c.Connections {
		conn, connErrs := fc.toConnection(baseDir)
		cfg.Connections = append(cfg.Connections, conn)
		errs = append(errs, connErrs...)
	}

	return errs
}

// toConnection converts a file profile into a connection.Connection.
func (fc FileConnectionConfig) toConnection(baseDir string) (connection.Connection, []string) {
	var errs []string

	conn := connection.Connection{
		ID:         fc.ID,
		Name:       fc.Name,
		Host:       fc.Host,
		Port:       fc.Port,
		Username:   fc.Username,
		Password:   fc.Password,
		PrivateKey: fc.PrivateKey,
		RemotePath: fc.RemotePath,
		LocalPath:  fc.LocalPath,
		Default:    fc.Default,
	}

	protocol, err := connection.ParseProtocol(fc.Protocol)
	if err != nil {
		errs = append(errs, fmt.Sprintf("connection %q: %v", fc.Name, err))
	}
	conn.Protocol = protocol

	if fc.PasswordFile != "" {
		secret, err := readSecretFile(resolvePath(baseDir, fc.PasswordFile))
		if err != nil {
			errs = append(errs, fmt.Sprintf("connection %q: password_file: %v", fc.Name, err))
		} else {
			conn.Password = strings.TrimSpace(secret)
		}
	}

	if fc.PrivateKeyFile != "" {
		key, err := readSecretFile(resolvePath(baseDir, fc.PrivateKeyFile))
		if err != nil {
			errs = append(errs, fmt.Sprintf("connection %q: private_key_file: %v", fc.Name, err))
		} else {
			conn.PrivateKey = key
		}
	}

	return conn, errs
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// GetConfigFilePath returns the config file path from the environment.
// Returns empty string if no config file is specified.
func GetConfigFilePath() string {
	return getEnv("SFTPDECK_CONFIG")
}
