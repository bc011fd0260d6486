// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ServerName is a validated Matrix server name (e.g., "example.org",
// "matrix.example.org:8448").
//
// The controller compares server names to decide two things: whether
// an alias that does not resolve may be created (only on the home
// server), and whether a member may be kicked (external users are left
// alone unless kick_external is set).
type ServerName struct {
	name string
}

// ParseServerName validates and wraps a raw server name.
func ParseServerName(raw string) (ServerName, error) {
	if err := validateServer(raw); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: raw}, nil
}

// MustParseServerName is like ParseServerName but panics on error.
func MustParseServerName(raw string) ServerName {
	s, err := ParseServerName(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseServerName(%q): %v", raw, err))
	}
	return s
}

// newServerName wraps a name already checked by validateServer.
func newServerName(name string) ServerName { return ServerName{name: name} }

// String returns the server name.
func (s ServerName) String() string { return s.name }

// IsZero reports whether the ServerName is the zero value.
func (s ServerName) IsZero() bool { return s.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (s ServerName) MarshalText() ([]byte, error) { return []byte(s.name), nil }

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (s *ServerName) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = ServerName{}
		return nil
	}
	parsed, err := ParseServerName(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
