// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID is a validated Matrix user ID (e.g., "@alice:example.org").
//
// The localpart and server are stored separately so that the
// same-homeserver check used by the kick policy is a field comparison,
// not a string split. Two UserIDs are equal iff both parts are equal.
//
// UserID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type UserID struct {
	localpart string
	server    string
}

// ParseUserID validates and wraps a raw Matrix user ID string.
// Returns an error if the string is empty, doesn't start with '@',
// has an empty or malformed localpart, or is missing the ':server'
// suffix.
func ParseUserID(raw string) (UserID, error) {
	localpart, server, err := parsePrefixedID(raw, '@', "user ID")
	if err != nil {
		return UserID{}, err
	}
	return UserID{localpart: localpart, server: server}, nil
}

// MustParseUserID is like ParseUserID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseUserID(raw string) UserID {
	u, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseUserID(%q): %v", raw, err))
	}
	return u
}

// NewUserID builds a UserID from a localpart and a server name. The
// localpart is validated; the server was validated when the ServerName
// was constructed.
func NewUserID(localpart string, server ServerName) (UserID, error) {
	if server.IsZero() {
		return UserID{}, fmt.Errorf("user ID %q: zero server name", localpart)
	}
	if err := validateLocalpart(localpart, "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{localpart: localpart, server: server.name}, nil
}

// String returns the full user ID string (e.g., "@alice:example.org").
// The zero value renders as the empty string.
func (u UserID) String() string {
	if u.IsZero() {
		return ""
	}
	return "@" + u.localpart + ":" + u.server
}

// IsZero reports whether the UserID is the zero value (uninitialized).
func (u UserID) IsZero() bool { return u.localpart == "" }

// Localpart returns the localpart without the '@' sigil or ':server'
// suffix.
func (u UserID) Localpart() string { return u.localpart }

// Server returns the homeserver that owns this user.
func (u UserID) Server() ServerName { return newServerName(u.server) }

// WithLocalpart returns a copy of u with the localpart replaced. Used
// when a directory rename maps an old account name onto a new one.
func (u UserID) WithLocalpart(localpart string) (UserID, error) {
	if err := validateLocalpart(localpart, "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{localpart: localpart, server: u.server}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the user
// ID format. An empty input produces the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
