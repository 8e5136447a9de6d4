// Package connection defines the connection profile consumed by the session core.
//
// A Connection is owned by the profile store; the session core only reads it.
// Exactly one authentication method is derived from a profile: the private key
// when one is present, otherwise the password.
package connection

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the standard SSH port, used when a profile leaves Port at 0.
const DefaultPort = 22

// Authentication method names.
const (
	AuthPublicKey = "public-key"
	AuthPassword  = "password"
)

// Connection is a stored connection profile.
type Connection struct {
	ID       int    `json:"id" yaml:"id,omitempty" toml:"id,omitempty"`
	Name     string `json:"name" yaml:"name" toml:"name"`
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     int    `json:"port" yaml:"port,omitempty" toml:"port,omitempty"`
	Username string `json:"username" yaml:"username" toml:"username"`

	// Password is used for password authentication, or as the key passphrase
	// when PrivateKey is set. Empty means absent.
	Password string `json:"password" yaml:"password,omitempty" toml:"password,omitempty"`

	// PrivateKey holds raw key material (PEM / OpenSSH text). Empty means absent.
	PrivateKey string `json:"private_key" yaml:"private_key,omitempty" toml:"private_key,omitempty"`

	RemotePath string   `json:"remote_path" yaml:"remote_path,omitempty" toml:"remote_path,omitempty"`
	LocalPath  string   `json:"local_path" yaml:"local_path,omitempty" toml:"local_path,omitempty"`
	Default    bool     `json:"default" yaml:"default,omitempty" toml:"default,omitempty"`
	Protocol   Protocol `json:"protocol" yaml:"protocol,omitempty" toml:"protocol,omitempty"`

	// Bookkeeping owned by the profile store.
	CreatedAt       string `json:"created_at" yaml:"created_at,omitempty" toml:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at" yaml:"updated_at,omitempty" toml:"updated_at,omitempty"`
	LastConnectedAt string `json:"last_connected_at" yaml:"last_connected_at,omitempty" toml:"last_connected_at,omitempty"`
}

// HasPrivateKey reports whether key material is present.
func (c Connection) HasPrivateKey() bool {
	return c.PrivateKey != ""
}

// HasPassword reports whether a password is present.
func (c Connection) HasPassword() bool {
	return c.Password != ""
}

// AuthMethod returns the single authentication method this profile drives.
func (c Connection) AuthMethod() string {
	if c.HasPrivateKey() {
		return AuthPublicKey
	}
	return AuthPassword
}

// Address returns the server address in host:port format.
func (c Connection) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Label returns a short human-readable identifier for logs.
func (c Connection) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Username + "@" + c.Address()
}

// Validate checks the fields a profile needs before it can be used.
func (c Connection) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}

	if c.Username == "" {
		errs = append(errs, "username is required")
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}

	if !c.Protocol.IsValid() {
		errs = append(errs, fmt.Sprintf("protocol %s is not supported", c.Protocol))
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection %q validation failed: %s", c.Label(), strings.Join(errs, "; "))
	}

	return nil
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c Connection) Redacted() Connection {
	if c.Password != "" {
		c.Password = "********"
	}
	if c.PrivateKey != "" {
		c.PrivateKey = "********"
	}
	return c
}
