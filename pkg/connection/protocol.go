// Package connection - protocol.go defines the transfer protocol tag of a profile.
package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownProtocol is returned when a protocol tag or name is not recognized.
var ErrUnknownProtocol = errors.New("unknown protocol")

// Protocol selects which remote protocol a connection profile speaks.
// The numeric values match the tags stored by the profile store.
type Protocol int

const (
	// ProtocolSFTP is SSH with the exec, SFTP and SCP sub-protocols.
	ProtocolSFTP Protocol = 0

	// ProtocolFTP is plain FTP. Profiles may carry it, but no executor serves it.
	ProtocolFTP Protocol = 1
)

// ValidProtocols lists all recognized protocols.
var ValidProtocols = []Protocol{ProtocolSFTP, ProtocolFTP}

// ProtocolFromTag converts a stored numeric tag into a Protocol.
// Unrecognized tags are an error; there is no fallback protocol.
func ProtocolFromTag(tag int) (Protocol, error) {
	p := Protocol(tag)
	if !p.IsValid() {
		return p, fmt.Errorf("%w: tag %d", ErrUnknownProtocol, tag)
	}
	return p, nil
}

// ParseProtocol parses a protocol name ("sftp", "ftp") or numeric tag.
// Returns ProtocolSFTP if the input is empty.
func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "sftp", "ssh":
		return ProtocolSFTP, nil
	case "ftp":
		return ProtocolFTP, nil
	}

	if tag, err := strconv.Atoi(s); err == nil {
		return ProtocolFromTag(tag)
	}

	return 0, fmt.Errorf("%w %q: must be one of sftp, ftp", ErrUnknownProtocol, s)
}

// IsValid returns true if the protocol is one of the recognized tags.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolSFTP, ProtocolFTP:
		return true
	default:
		return false
	}
}

// String returns the lower-case protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolSFTP:
		return "sftp"
	case ProtocolFTP:
		return "ftp"
	default:
		return "unknown(" + strconv.Itoa(int(p)) + ")"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownProtocol, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalJSON accepts either the numeric tag or the protocol name.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	var tag int
	if err := json.Unmarshal(data, &tag); err == nil {
		parsed, err := ProtocolFromTag(tag)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decoding protocol: %w", err)
	}
	return p.UnmarshalText([]byte(name))
}
