package session

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the session core matches exactly one
// of these with errors.Is.
var (
	// ErrNetwork indicates the TCP connection could not be established.
	ErrNetwork = errors.New("network error")

	// ErrHandshake indicates the SSH transport handshake failed after the socket opened.
	ErrHandshake = errors.New("ssh handshake failed")

	// ErrAuth indicates the single attempted authentication method was rejected.
	ErrAuth = errors.New("authentication failed")

	// ErrChannel indicates an exec, SFTP or SCP channel could not be opened.
	ErrChannel = errors.New("channel open failed")

	// ErrTransfer indicates a read or write failure mid-operation.
	ErrTransfer = errors.New("transfer failed")

	// ErrUnsupportedProtocol indicates no executor handles the profile's protocol.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")

	// ErrClosed is returned when a channel is requested on a closed session.
	ErrClosed = errors.New("session is closed")
)

// Protocol routing errors. Both match ErrUnsupportedProtocol.
var (
	ErrNotImplemented  = fmt.Errorf("%w: FTP not implemented", ErrUnsupportedProtocol)
	ErrUnknownProtocol = fmt.Errorf("%w: unknown protocol", ErrUnsupportedProtocol)
)

// OpError wraps an error with the operation, host and error kind.
type OpError struct {
	// Op is the operation that failed (connect, exec, list, download).
	Op string

	// Host is the address the operation targeted.
	Host string

	// Kind is one of the package error kinds.
	Kind error

	// Method is the authentication method for ErrAuth errors.
	Method string

	// Err is the underlying cause. May be nil.
	Err error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Host != "" {
		msg += " " + e.Host
	}
	msg += ": " + e.Kind.Error()
	if e.Method != "" {
		msg += " (" + e.Method + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError creates an OpError of the given kind.
func NewError(op, host string, kind, err error) error {
	return &OpError{
		Op:   op,
		Host: host,
		Kind: kind,
		Err:  err,
	}
}

// newAuthError creates an ErrAuth error for the given method.
func newAuthError(host, method string, err error) error {
	return &OpError{
		Op:     "connect",
		Host:   host,
		Kind:   ErrAuth,
		Method: method,
		Err:    err,
	}
}

// AuthMethod returns the authentication method recorded in an ErrAuth error,
// or "" if err is not an authentication failure.
func AuthMethod(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Kind == ErrAuth {
		return opErr.Method
	}
	return ""
}

// Kind returns the error kind of err, or nil if it has none.
func Kind(err error) error {
	for _, kind := range []error{ErrNetwork, ErrHandshake, ErrAuth, ErrChannel, ErrTransfer, ErrUnsupportedProtocol, ErrClosed} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsAuth returns true if the error is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsUnsupportedProtocol returns true if the profile's protocol has no executor.
func IsUnsupportedProtocol(err error) bool {
	return errors.Is(err, ErrUnsupportedProtocol)
}
