package session

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestOpError(t *testing.T) {
	err := NewError("list", "example.com:22", ErrTransfer, io.ErrUnexpectedEOF)

	if !errors.Is(err, ErrTransfer) {
		t.Error("errors.Is(err, ErrTransfer) = false")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrChannel) {
		t.Error("errors.Is(err, ErrChannel) = true")
	}

	want := "list example.com:22: transfer failed: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "list" {
		t.Errorf("errors.As() did not expose OpError: %v", err)
	}
}

func TestOpError_NilCause(t *testing.T) {
	err := NewError("channel", "h:22", ErrClosed, nil)
	if !errors.Is(err, ErrClosed) {
		t.Error("errors.Is(err, ErrClosed) = false")
	}
	if strings.HasSuffix(err.Error(), ": ") {
		t.Errorf("Error() = %q has dangling separator", err.Error())
	}
}

func TestAuthMethod(t *testing.T) {
	authErr := newAuthError("h:22", "password", errors.New("denied"))
	if got := AuthMethod(authErr); got != "password" {
		t.Errorf("AuthMethod() = %q, want password", got)
	}
	if !IsAuth(authErr) {
		t.Error("IsAuth() = false, want true")
	}
	if !strings.Contains(authErr.Error(), "(password)") {
		t.Errorf("Error() = %q, want method in message", authErr.Error())
	}

	if got := AuthMethod(NewError("connect", "h:22", ErrNetwork, nil)); got != "" {
		t.Errorf("AuthMethod() on network error = %q, want empty", got)
	}
	if got := AuthMethod(nil); got != "" {
		t.Errorf("AuthMethod(nil) = %q, want empty", got)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"network", NewError("connect", "", ErrNetwork, nil), ErrNetwork},
		{"auth", newAuthError("", "public-key", nil), ErrAuth},
		{"not implemented", ErrNotImplemented, ErrUnsupportedProtocol},
		{"unknown protocol", ErrUnknownProtocol, ErrUnsupportedProtocol},
		{"plain", errors.New("boom"), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtocolErrors(t *testing.T) {
	if !IsUnsupportedProtocol(ErrNotImplemented) || !IsUnsupportedProtocol(ErrUnknownProtocol) {
		t.Error("protocol errors do not match ErrUnsupportedProtocol")
	}
	if errors.Is(ErrNotImplemented, ErrUnknownProtocol) {
		t.Error("ErrNotImplemented matches ErrUnknownProtocol")
	}
	if !strings.Contains(ErrNotImplemented.Error(), "FTP not implemented") {
		t.Errorf("ErrNotImplemented = %q", ErrNotImplemented)
	}
}
