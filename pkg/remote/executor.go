// Package remote runs the three remote verbs over an authenticated session:
// command execution, directory listing and file download.
//
// Each verb opens its own channel on the session and closes it before
// returning. The session itself is owned and closed by the caller.
package remote

import (
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// ChunkSize is the buffer size used when copying downloads to disk.
const ChunkSize = 4096

// DefaultTransferTimeout bounds a single SCP download.
const DefaultTransferTimeout = time.Hour

// Session is an authenticated connection channels can be opened on.
// *session.Session satisfies it.
type Session interface {
	Client() (*ssh.Client, error)
	Address() string
	ID() string
}

// Executor runs remote operations.
type Executor struct {
	logger          *slog.Logger
	fs              afero.Fs
	transferTimeout time.Duration
}

// Option is a functional option for configuring the Executor.
type Option func(*Executor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFs sets the local filesystem downloads are written to.
func WithFs(fs afero.Fs) Option {
	return func(e *Executor) {
		if fs != nil {
			e.fs = fs
		}
	}
}

// WithTransferTimeout sets the upper bound for one download.
func WithTransferTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.transferTimeout = timeout
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger:          slog.Default(),
		fs:              afero.NewOsFs(),
		transferTimeout: DefaultTransferTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}
