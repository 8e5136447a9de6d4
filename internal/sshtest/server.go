// Package sshtest provides an in-process SSH server for tests.
//
// The server accepts password and public key authentication, records every
// attempt, answers exec requests through a handler, serves the sftp subsystem
// from the local filesystem and acts as an scp source for registered files.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecHandler answers an exec request with stdout and an exit status.
type ExecHandler func(command string) (stdout []byte, exitStatus int)

// AuthAttempt is one authentication attempt seen by the server.
type AuthAttempt struct {
	User    string
	Method  string
	Success bool
}

// Server is an in-process SSH server listening on 127.0.0.1.
type Server struct {
	config   *ssh.ServerConfig
	listener net.Listener

	passwords      map[string]string
	authorizedKeys map[string][]ssh.PublicKey
	exec           ExecHandler
	files          map[string][]byte
	noSFTP         bool
	banner         string

	mu       sync.Mutex
	attempts []AuthAttempt
	conns    []net.Conn
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithPassword accepts password authentication for user.
func WithPassword(user, password string) Option {
	return func(s *Server) {
		s.passwords[user] = password
	}
}

// WithAuthorizedKey accepts public key authentication for user with key.
func WithAuthorizedKey(user string, key ssh.PublicKey) Option {
	return func(s *Server) {
		s.authorizedKeys[user] = append(s.authorizedKeys[user], key)
	}
}

// WithExecHandler sets the exec request handler.
func WithExecHandler(h ExecHandler) Option {
	return func(s *Server) {
		s.exec = h
	}
}

// WithFile registers content served by "scp -f <path>".
func WithFile(path string, data []byte) Option {
	return func(s *Server) {
		s.files[path] = data
	}
}

// WithoutSFTP makes the server refuse the sftp subsystem.
func WithoutSFTP() Option {
	return func(s *Server) {
		s.noSFTP = true
	}
}

// WithBanner sends a pre-authentication banner.
func WithBanner(message string) Option {
	return func(s *Server) {
		s.banner = message
	}
}

// Start launches a server and stops it when the test ends.
func Start(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	s := &Server{
		passwords:      make(map[string]string),
		authorizedKeys: make(map[string][]ssh.PublicKey),
		files:          make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	hostKey, _ := GenerateKey(tb)

	s.config = &ssh.ServerConfig{
		AuthLogCallback: s.recordAttempt,
	}
	if len(s.passwords) > 0 {
		s.config.PasswordCallback = s.checkPassword
	}
	if len(s.authorizedKeys) > 0 {
		s.config.PublicKeyCallback = s.checkPublicKey
	}
	if s.banner != "" {
		s.config.BannerCallback = func(ssh.ConnMetadata) string { return s.banner }
	}
	s.config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.serve()

	tb.Cleanup(s.Close)

	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Attempts returns the authentication attempts seen so far, excluding the
// initial "none" probe every client sends.
func (s *Server) Attempts() []AuthAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuthAttempt(nil), s.attempts...)
}

// Methods returns the distinct authentication methods clients tried.
func (s *Server) Methods() []string {
	seen := make(map[string]bool)
	var methods []string
	for _, a := range s.Attempts() {
		if !seen[a.Method] {
			seen[a.Method] = true
			methods = append(methods, a.Method)
		}
	}
	return methods
}

// Close stops the server and drops open connections.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) recordAttempt(conn ssh.ConnMetadata, method string, err error) {
	if method == "none" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, AuthAttempt{User: conn.User(), Method: method, Success: err == nil})
}

func (s *Server) checkPassword(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	if want, ok := s.passwords[conn.User()]; ok && want == string(password) {
		return &ssh.Permissions{}, nil
	}
	return nil, fmt.Errorf("password rejected for %q", conn.User())
}

func (s *Server) checkPublicKey(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	for _, authorized := range s.authorizedKeys[conn.User()] {
		if ssh.FingerprintSHA256(authorized) == ssh.FingerprintSHA256(key) {
			return &ssh.Permissions{}, nil
		}
	}
	return nil, fmt.Errorf("unknown public key for %q", conn.User())
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, netConn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(netConn)
		}()
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		_ = netConn.Close()
		return
	}
	defer func() { _ = sshConn.Close() }()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			if strings.HasPrefix(payload.Command, "scp -f ") {
				s.sendFile(ch, strings.TrimPrefix(payload.Command, "scp -f "))
				return
			}
			s.runExec(ch, payload.Command)
			return

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" || s.noSFTP {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			_ = server.Serve()
			_ = server.Close()
			return

		default:
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		}
	}
}

func (s *Server) runExec(ch ssh.Channel, command string) {
	stdout, status := []byte(fmt.Sprintf("unknown command: %s\n", command)), 127
	if s.exec != nil {
		stdout, status = s.exec(command)
	}
	_, _ = ch.Write(stdout)
	sendExitStatus(ch, status)
}

// sendFile speaks the source side of the scp protocol for one file.
func (s *Server) sendFile(ch ssh.Channel, arg string) {
	path := arg
	if unquoted, err := strconv.Unquote(arg); err == nil {
		path = unquoted
	}

	ack := make([]byte, 1)
	if _, err := io.ReadFull(ch, ack); err != nil {
		return
	}

	data, ok := s.files[path]
	if !ok {
		_, _ = fmt.Fprintf(ch, "\x01scp: %s: No such file or directory\n", path)
		sendExitStatus(ch, 1)
		return
	}

	name := path[strings.LastIndex(path, "/")+1:]
	if _, err := fmt.Fprintf(ch, "C0644 %d %s\n", len(data), name); err != nil {
		return
	}
	if _, err := io.ReadFull(ch, ack); err != nil {
		return
	}

	if _, err := ch.Write(data); err != nil {
		return
	}
	if _, err := ch.Write([]byte{0}); err != nil {
		return
	}
	_, _ = io.ReadFull(ch, ack)

	sendExitStatus(ch, 0)
}

func sendExitStatus(ch ssh.Channel, status int) {
	payload := ssh.Marshal(struct{ Status uint32 }{uint32(status)})
	_, _ = ch.SendRequest("exit-status", false, payload)
}

// GenerateKey returns an ed25519 signer and its unencrypted OpenSSH PEM encoding.
func GenerateKey(tb testing.TB) (ssh.Signer, string) {
	tb.Helper()
	return generateKey(tb, "")
}

// GenerateEncryptedKey returns an ed25519 signer and its PEM encoding
// encrypted with passphrase.
func GenerateEncryptedKey(tb testing.TB, passphrase string) (ssh.Signer, string) {
	tb.Helper()
	return generateKey(tb, passphrase)
}

func generateKey(tb testing.TB, passphrase string) (ssh.Signer, string) {
	tb.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}
	if err != nil {
		tb.Fatalf("marshal key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		tb.Fatalf("signer from key: %v", err)
	}

	return signer, string(pem.EncodeToMemory(block))
}

// StartGarbage listens on 127.0.0.1 and answers every connection with a
// non-SSH greeting before hanging up. It returns the listening address.
func StartGarbage(tb testing.TB) string {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			_ = conn.Close()
		}
	}()

	tb.Cleanup(func() {
		_ = listener.Close()
		<-done
	})

	return listener.Addr().String()
}

// ClosedAddr returns an address nothing is listening on.
func ClosedAddr(tb testing.TB) string {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}
