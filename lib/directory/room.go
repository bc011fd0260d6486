// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
)

// Member is one desired room member and the tier the directory grants
// them.
type Member struct {
	UserID ref.UserID
	Tier   schema.Tier
}

// Room is the desired state of one room for one reconciliation pass.
// RoomID is zero until the alias has been resolved on the homeserver.
type Room struct {
	Alias   ref.RoomAlias
	RoomID  ref.RoomID
	Members []Member
}

// Membership maps each desired member to their tier. It is the unit of
// work the reconciler diffs against a room's actual state.
type Membership map[ref.UserID]schema.Tier

// Membership returns the room's desired membership. Member lists built
// by this package have no duplicates; for hand-built rooms a later
// duplicate keeps the higher tier.
func (r Room) Membership() Membership {
	membership := make(Membership, len(r.Members))
	for _, member := range r.Members {
		if existing, ok := membership[member.UserID]; ok && existing >= member.Tier {
			continue
		}
		membership[member.UserID] = member.Tier
	}
	return membership
}

// Matches reports whether identifier names this room, either as the
// canonical alias or as the resolved room ID.
func (r Room) Matches(identifier string) bool {
	if identifier == "" {
		return false
	}
	if identifier == r.Alias.String() {
		return true
	}
	return !r.RoomID.IsZero() && identifier == r.RoomID.String()
}

// Find returns the first room in rooms that matches identifier.
func Find(rooms []Room, identifier string) (Room, bool) {
	for _, room := range rooms {
		if room.Matches(identifier) {
			return room, true
		}
	}
	return Room{}, false
}
