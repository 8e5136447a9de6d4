// Package session opens authenticated SSH sessions from connection profiles.
//
// Every call to Manager.Connect produces a fresh, independent Session bound to
// one TCP socket. Sessions are never pooled or reused; the caller owns the
// Session and must Close it when its single operation completes or fails.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/keyfile"
)

// DefaultTimeout bounds TCP connect plus handshake and authentication.
const DefaultTimeout = 30 * time.Second

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Manager turns connection profiles into authenticated sessions.
type Manager struct {
	logger          *slog.Logger
	dialer          Dialer
	keys            *keyfile.Materializer
	hostKeyCallback ssh.HostKeyCallback
	timeout         time.Duration
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDialer sets the dialer used to open TCP connections.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithMaterializer sets where private keys are materialized during authentication.
func WithMaterializer(keys *keyfile.Materializer) Option {
	return func(m *Manager) {
		if keys != nil {
			m.keys = keys
		}
	}
}

// WithHostKeyCallback sets host key verification.
// Without it, host keys are not verified.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(m *Manager) {
		m.hostKeyCallback = cb
	}
}

// WithTimeout sets the connect timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout >= 0 {
			m.timeout = timeout
		}
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:  slog.Default(),
		keys:    keyfile.New(),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		m.dialer = &net.Dialer{Timeout: m.timeout}
	}

	if m.hostKeyCallback == nil {
		m.logger.Warn("host key verification disabled - this is insecure")
		m.hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // no known_hosts configured
	}

	return m
}

// KnownHostsCallback builds a host key callback from one or more known_hosts files.
func KnownHostsCallback(files ...string) (ssh.HostKeyCallback, error) {
	cb, err := knownhosts.New(files...)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}
	return cb, nil
}

// Connect dials the profile's host, performs the SSH handshake and
// authenticates with exactly one method: public key when the profile carries
// a private key, password otherwise. No retries are made.
func (m *Manager) Connect(ctx context.Context, conn connection.Connection) (*Session, error) {
	addr := conn.Address()
	method := conn.AuthMethod()

	m.logger.Debug("connecting to SSH server",
		slog.String("connection", conn.Label()),
		slog.String("address", addr),
		slog.String("user", conn.Username),
		slog.String("auth", method),
	)

	dialCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	netConn, err := m.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, NewError("connect", addr, ErrNetwork, err)
	}

	auth := &authenticator{conn: conn, keys: m.keys}
	defer func() {
		if releaseErr := auth.release(); releaseErr != nil {
			m.logger.Error("failed to remove materialized key",
				slog.String("connection", conn.Label()),
				slog.String("error", releaseErr.Error()),
			)
		}
	}()

	var banner strings.Builder
	sshConfig := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            []ssh.AuthMethod{auth.method()},
		HostKeyCallback: m.hostKeyCallback,
		BannerCallback: func(message string) error {
			banner.WriteString(message)
			return nil
		},
		Timeout: m.timeout,
	}

	if m.timeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(m.timeout))
	}

	// Unblock the handshake if the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	stop()

	if err != nil {
		_ = netConn.Close() // Best effort cleanup
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		if auth.attempted.Load() || isAuthError(err) {
			m.logger.Debug("SSH authentication failed",
				slog.String("connection", conn.Label()),
				slog.String("auth", method),
			)
			return nil, newAuthError(addr, method, err)
		}
		return nil, NewError("connect", addr, ErrHandshake, err)
	}

	_ = netConn.SetDeadline(time.Time{})

	s := newSession(ssh.NewClient(sshConn, chans, reqs), addr, banner.String(), m.logger)

	m.logger.Info("SSH connection established",
		slog.String("connection", conn.Label()),
		slog.String("address", addr),
		slog.String("session", s.ID()),
	)

	return s, nil
}

// authenticator produces the single auth method for a profile and records
// whether the server reached the authentication phase.
type authenticator struct {
	conn connection.Connection
	keys *keyfile.Materializer

	attempted atomic.Bool

	mu  sync.Mutex
	key *keyfile.TempKey
}

func (a *authenticator) method() ssh.AuthMethod {
	if a.conn.HasPrivateKey() {
		return ssh.PublicKeysCallback(a.signers)
	}
	return ssh.PasswordCallback(func() (string, error) {
		a.attempted.Store(true)
		return a.conn.Password, nil
	})
}

// signers materializes the key, reads it back and parses it. The key file
// stays on disk until release is called after the attempt completes.
func (a *authenticator) signers() ([]ssh.Signer, error) {
	a.attempted.Store(true)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.key == nil {
		key, err := a.keys.Materialize(a.conn.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("materializing private key: %w", err)
		}
		a.key = key
	}

	data, err := a.key.Read()
	if err != nil {
		return nil, err
	}

	signer, err := parsePrivateKey(data, a.conn.Password)
	if err != nil {
		return nil, err
	}

	return []ssh.Signer{signer}, nil
}

// release removes the materialized key file, if any.
func (a *authenticator) release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.key == nil {
		return nil
	}
	return a.key.Release()
}

// parsePrivateKey parses key data. The passphrase is only used when the key
// is encrypted.
func parsePrivateKey(data []byte, passphrase string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypting private key: %w", err)
		}
		return signer, nil
	}

	return nil, fmt.Errorf("parsing private key: %w", err)
}

// isAuthError checks if a handshake error came from the authentication phase.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods") ||
		strings.Contains(errStr, "permission denied")
}
