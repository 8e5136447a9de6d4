// Package keyfile materializes in-memory private keys as short-lived files.
//
// Authentication reads key material from a file path. Each call to
// Materialize writes to its own uniquely named file, so concurrent
// authentications never share a path. The caller must Release the returned
// TempKey on every exit path of the authentication attempt.
package keyfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FilePrefix is the name prefix of every materialized key file.
const FilePrefix = "sftpdeck-key-"

// keyFileMode restricts key files to the owner.
const keyFileMode os.FileMode = 0o600

// ErrEmptyKey is returned when Materialize is called without key material.
var ErrEmptyKey = errors.New("private key is empty")

// Materializer writes key material to a filesystem.
type Materializer struct {
	fs  afero.Fs
	dir string
}

// Option is a functional option for configuring the Materializer.
type Option func(*Materializer)

// WithFs sets the filesystem key files are written to.
func WithFs(fs afero.Fs) Option {
	return func(m *Materializer) {
		if fs != nil {
			m.fs = fs
		}
	}
}

// WithDir sets the directory key files are written to.
func WithDir(dir string) Option {
	return func(m *Materializer) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// New creates a Materializer. By default it writes to the OS temp directory.
func New(opts ...Option) *Materializer {
	m := &Materializer{
		fs:  afero.NewOsFs(),
		dir: os.TempDir(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Dir returns the directory key files are written to.
func (m *Materializer) Dir() string {
	return m.dir
}

// Materialize writes key to a new file and returns its handle.
// On error no file is left behind.
func (m *Materializer) Materialize(key string) (*TempKey, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	if err := m.fs.MkdirAll(m.dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory %s: %w", m.dir, err)
	}

	path := filepath.Join(m.dir, FilePrefix+uuid.NewString())

	// O_EXCL guards against reusing a path another call still owns.
	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}

	tk := &TempKey{fs: m.fs, path: path}

	if _, err := f.Write([]byte(key)); err != nil {
		_ = f.Close()
		_ = tk.Release()
		return nil, fmt.Errorf("writing key file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = tk.Release()
		return nil, fmt.Errorf("closing key file: %w", err)
	}

	return tk, nil
}

// TempKey is a materialized key file owned by one authentication attempt.
type TempKey struct {
	fs   afero.Fs
	path string

	once sync.Once
	err  error
}

// Path returns the location of the key file.
func (k *TempKey) Path() string {
	return k.path
}

// Read returns the key material from disk.
func (k *TempKey) Read() ([]byte, error) {
	data, err := afero.ReadFile(k.fs, k.path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return data, nil
}

// Release removes the key file. Safe to call multiple times.
func (k *TempKey) Release() error {
	k.once.Do(func() {
		err := k.fs.Remove(k.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			k.err = fmt.Errorf("removing key file %s: %w", k.path, err)
		}
	})
	return k.err
}
