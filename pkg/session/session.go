package session

import (
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// Session is one authenticated SSH connection. It is not shared between
// operations.
type Session struct {
	id     string
	addr   string
	banner string
	logger *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
	closed bool
}

func newSession(client *ssh.Client, addr, banner string, logger *slog.Logger) *Session {
	return &Session{
		id:     uuid.NewString(),
		addr:   addr,
		banner: banner,
		logger: logger,
		client: client,
	}
}

// ID returns a unique identifier for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Address returns the host:port the session is connected to.
func (s *Session) Address() string {
	return s.addr
}

// Banner returns the pre-authentication banner sent by the server, if any.
func (s *Session) Banner() string {
	return s.banner
}

// Authenticated reports whether the session is open and usable.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.client != nil
}

// Client returns the underlying SSH client for opening channels.
func (s *Session) Client() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.client == nil {
		return nil, NewError("channel", s.addr, ErrClosed, nil)
	}
	return s.client, nil
}

// Close tears down the connection. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.client == nil {
		return nil
	}

	err := s.client.Close()
	s.client = nil

	s.logger.Debug("SSH connection closed",
		slog.String("address", s.addr),
		slog.String("session", s.id),
	)

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
