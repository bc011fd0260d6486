// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g., "#team:example.org").
//
// Aliases name the rooms in a directory listing. They resolve to opaque
// RoomIDs on the homeserver. The server part decides whether the
// controller may create the room when the alias does not resolve: only
// aliases on the controller's own homeserver can be created.
//
// RoomAlias is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomAlias struct {
	localpart string
	server    string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
// Returns an error if the string is empty, doesn't start with '#',
// or is missing the ':server' suffix.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	localpart, server, err := parsePrefixedID(raw, '#', "room alias")
	if err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{localpart: localpart, server: server}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// NewRoomAlias builds a RoomAlias from a localpart and server name.
func NewRoomAlias(localpart string, server ServerName) (RoomAlias, error) {
	if server.IsZero() {
		return RoomAlias{}, fmt.Errorf("room alias %q: zero server name", localpart)
	}
	if err := validateLocalpart(localpart, "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{localpart: localpart, server: server.name}, nil
}

// String returns the full room alias string (e.g., "#team:example.org").
func (a RoomAlias) String() string {
	if a.IsZero() {
		return ""
	}
	return "#" + a.localpart + ":" + a.server
}

// IsZero reports whether the RoomAlias is the zero value (uninitialized).
func (a RoomAlias) IsZero() bool { return a.localpart == "" }

// Localpart returns the alias localpart without the '#' prefix or
// ':server' suffix. This is the room_alias_name used at room creation.
func (a RoomAlias) Localpart() string { return a.localpart }

// Server returns the homeserver the alias lives on.
func (a RoomAlias) Server() ServerName { return newServerName(a.server) }

// MarshalText implements encoding.TextMarshaler.
func (a RoomAlias) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the room
// alias format. An empty input produces the zero value.
func (a *RoomAlias) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = RoomAlias{}
		return nil
	}
	parsed, err := ParseRoomAlias(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
