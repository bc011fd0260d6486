// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventType identifies a Matrix state or timeline event type
// (m.room.power_levels, m.room.name). Constants live in lib/schema.
// It is a named string so a state key cannot be passed where an event
// type is expected.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// EventID is a Matrix event ID as returned by the send and state
// endpoints. Event IDs are opaque: the only check is the '$' prefix and
// a non-empty remainder.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw event ID.
func ParseEventID(raw string) (EventID, error) {
	if len(raw) < 2 || raw[0] != '$' {
		return EventID{}, fmt.Errorf("invalid event ID %q: must be '$' followed by an opaque id", raw)
	}
	return EventID{id: raw}, nil
}

// String returns the event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
