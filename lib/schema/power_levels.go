// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bureau-foundation/inviter/lib/ref"
)

// PowerLevels is a typed representation of the Matrix m.room.power_levels
// state event content. It supports typed read-modify-write operations:
// unmarshal the raw JSON from GetStateEvent, modify, then send the struct
// back with SendStateEvent.
//
// Pointer-to-int fields distinguish "not set" (nil, omitted from JSON)
// from "explicitly set to 0". This preserves server defaults for fields
// the caller doesn't touch.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  *int           `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault *int           `json:"events_default,omitempty"`
	StateDefault  *int           `json:"state_default,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
	Redact        *int           `json:"redact,omitempty"`
	Notifications map[string]int `json:"notifications,omitempty"`
}

// UserLevel returns the power level of userID: its explicit entry if
// present, otherwise users_default, otherwise 0 per the Matrix default.
func (powerLevels *PowerLevels) UserLevel(userID ref.UserID) int {
	if level, ok := powerLevels.Users[userID.String()]; ok {
		return level
	}
	if powerLevels.UsersDefault != nil {
		return *powerLevels.UsersDefault
	}
	return 0
}

// SetUserLevel sets the power level for a user. Initializes the Users
// map if nil.
func (powerLevels *PowerLevels) SetUserLevel(userID ref.UserID, level int) {
	if powerLevels.Users == nil {
		powerLevels.Users = make(map[string]int)
	}
	powerLevels.Users[userID.String()] = level
}

// SetEventLevel sets the required power level for sending a given event
// type. Initializes the Events map if nil.
func (powerLevels *PowerLevels) SetEventLevel(eventType ref.EventType, level int) {
	if powerLevels.Events == nil {
		powerLevels.Events = make(map[string]int)
	}
	powerLevels.Events[string(eventType)] = level
}

// Admins returns the users with an explicit entry at TierAdmin or
// above, sorted. Entries that are not valid user IDs are skipped.
func (powerLevels *PowerLevels) Admins() []ref.UserID {
	var admins []ref.UserID
	for raw, level := range powerLevels.Users {
		if level < TierAdmin.Level() {
			continue
		}
		userID, err := ref.ParseUserID(raw)
		if err != nil {
			continue
		}
		admins = append(admins, userID)
	}
	slices.SortFunc(admins, func(a, b ref.UserID) int {
		return strings.Compare(a.String(), b.String())
	})
	return admins
}

// Clone returns a deep copy. Maps are copied so the result can be
// modified without touching the original.
func (powerLevels *PowerLevels) Clone() *PowerLevels {
	clone := *powerLevels
	clone.Users = maps.Clone(powerLevels.Users)
	clone.Events = maps.Clone(powerLevels.Events)
	clone.Notifications = maps.Clone(powerLevels.Notifications)
	clone.UsersDefault = cloneLevel(powerLevels.UsersDefault)
	clone.EventsDefault = cloneLevel(powerLevels.EventsDefault)
	clone.StateDefault = cloneLevel(powerLevels.StateDefault)
	clone.Invite = cloneLevel(powerLevels.Invite)
	clone.Ban = cloneLevel(powerLevels.Ban)
	clone.Kick = cloneLevel(powerLevels.Kick)
	clone.Redact = cloneLevel(powerLevels.Redact)
	return &clone
}

// Equal reports whether two power level contents would serialize to the
// same event. A nil map equals an empty map.
func (powerLevels *PowerLevels) Equal(other *PowerLevels) bool {
	return maps.Equal(powerLevels.Users, other.Users) &&
		maps.Equal(powerLevels.Events, other.Events) &&
		maps.Equal(powerLevels.Notifications, other.Notifications) &&
		levelEqual(powerLevels.UsersDefault, other.UsersDefault) &&
		levelEqual(powerLevels.EventsDefault, other.EventsDefault) &&
		levelEqual(powerLevels.StateDefault, other.StateDefault) &&
		levelEqual(powerLevels.Invite, other.Invite) &&
		levelEqual(powerLevels.Ban, other.Ban) &&
		levelEqual(powerLevels.Kick, other.Kick) &&
		levelEqual(powerLevels.Redact, other.Redact)
}

// Level returns a pointer to value, for filling the optional fields.
func Level(value int) *int { return &value }

func cloneLevel(level *int) *int {
	if level == nil {
		return nil
	}
	return Level(*level)
}

func levelEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StateSession is the subset of the Matrix client-server API needed for
// state event read-modify-write operations. Satisfied implicitly by
// messaging.DirectSession.
type StateSession interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
}

// ReadPowerLevels fetches and decodes the m.room.power_levels event of
// a room.
func ReadPowerLevels(ctx context.Context, session StateSession, roomID ref.RoomID) (*PowerLevels, error) {
	content, err := session.GetStateEvent(ctx, roomID, MatrixEventTypePowerLevels, "")
	if err != nil {
		return nil, fmt.Errorf("reading power levels for %s: %w", roomID, err)
	}
	var powerLevels PowerLevels
	if err := json.Unmarshal(content, &powerLevels); err != nil {
		return nil, fmt.Errorf("parsing power levels for %s: %w", roomID, err)
	}
	return &powerLevels, nil
}
