// Package dispatch routes remote operations by the profile's protocol.
//
// SFTP profiles get a fresh session per call, closed on every exit path.
// FTP profiles fail with session.ErrNotImplemented and any other protocol with
// session.ErrUnknownProtocol, both without touching the network.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/sftp"

	"gitlab.bluewillows.net/root/sftpdeck/internal/metrics"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/remote"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// errNotAuthenticated is returned by Probe when the session reports no
// authenticated user.
var errNotAuthenticated = errors.New("session not authenticated")

// Connector opens sessions. *session.Manager satisfies it.
type Connector interface {
	Connect(ctx context.Context, conn connection.Connection) (*session.Session, error)
}

// Operation identifies a dispatched verb.
type Operation int

const (
	OpTest Operation = iota
	OpList
	OpExec
	OpDownload
)

// String returns the metric and log label of the operation.
func (o Operation) String() string {
	switch o {
	case OpTest:
		return "test"
	case OpList:
		return "list"
	case OpExec:
		return "exec"
	case OpDownload:
		return "download"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Dispatcher runs operations against connection profiles.
type Dispatcher struct {
	connector Connector
	executor  *remote.Executor
	logger    *slog.Logger
}

// Option is a functional option for configuring the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithExecutor sets the executor used for SFTP profiles.
func WithExecutor(e *remote.Executor) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.executor = e
		}
	}
}

// New creates a Dispatcher.
func New(connector Connector, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		connector: connector,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.executor == nil {
		d.executor = remote.New(remote.WithLogger(d.logger))
	}

	return d
}

// TestConnection reports whether the profile can connect and authenticate.
func (d *Dispatcher) TestConnection(ctx context.Context, conn connection.Connection) bool {
	if err := d.Probe(ctx, conn); err != nil {
		d.logger.Info("connection test failed",
			slog.String("connection", conn.Label()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Probe connects, opens the SFTP subsystem and checks the session is
// authenticated. An SFTP failure is logged but does not fail the probe.
func (d *Dispatcher) Probe(ctx context.Context, conn connection.Connection) error {
	return d.route(ctx, OpTest, conn, func(sess *session.Session) error {
		client, err := sess.Client()
		if err != nil {
			return err
		}

		if sftpClient, err := sftp.NewClient(client); err != nil {
			d.logger.Warn("SFTP subsystem unavailable",
				slog.String("connection", conn.Label()),
				slog.String("error", err.Error()),
			)
		} else {
			_ = sftpClient.Close()
		}

		if banner := sess.Banner(); banner != "" {
			d.logger.Info("server banner",
				slog.String("connection", conn.Label()),
				slog.String("banner", banner),
			)
		}

		if !sess.Authenticated() {
			return errNotAuthenticated
		}
		return nil
	})
}

// List returns the entries of dir on the profile's host.
func (d *Dispatcher) List(ctx context.Context, conn connection.Connection, dir string, showHidden bool) ([]remote.File, error) {
	var files []remote.File
	err := d.route(ctx, OpList, conn, func(sess *session.Session) error {
		var err error
		files, err = d.executor.List(ctx, sess, dir, showHidden)
		return err
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Exec runs command on the profile's host and returns its standard output.
func (d *Dispatcher) Exec(ctx context.Context, conn connection.Connection, command string) (string, error) {
	var out string
	err := d.route(ctx, OpExec, conn, func(sess *session.Session) error {
		var err error
		out, err = d.executor.Exec(ctx, sess, command)
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Download copies remotePath on the profile's host to localPath.
func (d *Dispatcher) Download(ctx context.Context, conn connection.Connection, remotePath, localPath string) error {
	return d.route(ctx, OpDownload, conn, func(sess *session.Session) error {
		n, err := d.executor.Download(ctx, sess, remotePath, localPath)
		metrics.BytesDownloaded.Add(float64(n))
		return err
	})
}

// route selects the handling for conn's protocol and, for SFTP, runs fn on a
// fresh session.
func (d *Dispatcher) route(ctx context.Context, op Operation, conn connection.Connection, fn func(*session.Session) error) (err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveOperation(op.String(), conn.Protocol.String(), started, err)
	}()

	switch conn.Protocol {
	case connection.ProtocolSFTP:
	case connection.ProtocolFTP:
		return session.ErrNotImplemented
	default:
		d.logger.Warn("unknown protocol",
			slog.String("connection", conn.Label()),
			slog.String("protocol", conn.Protocol.String()),
		)
		return fmt.Errorf("%w: %s", session.ErrUnknownProtocol, conn.Protocol)
	}

	sess, err := d.connector.Connect(ctx, conn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			d.logger.Debug("closing session",
				slog.String("session", sess.ID()),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	d.logger.Debug("dispatching operation",
		slog.String("operation", op.String()),
		slog.String("connection", conn.Label()),
		slog.String("session", sess.ID()),
	)

	return fn(sess)
}
