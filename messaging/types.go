// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
)

// Room presets accepted by createRoom.
const (
	PresetPrivateChat        = "private_chat"
	PresetTrustedPrivateChat = "trusted_private_chat"
	PresetPublicChat         = "public_chat"
)

// Membership states in m.room.member events.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// CreateRoomRequest is the body of POST /createRoom.
type CreateRoomRequest struct {
	Name   string `json:"name,omitempty"`
	Topic  string `json:"topic,omitempty"`
	// Alias is the local alias without '#' or ':server'.
	Alias                     string              `json:"room_alias_name,omitempty"`
	Visibility                string              `json:"visibility,omitempty"`
	Preset                    string              `json:"preset,omitempty"`
	Invite                    []ref.UserID        `json:"invite,omitempty"`
	InitialState              []StateEvent        `json:"initial_state,omitempty"`
	PowerLevelContentOverride *schema.PowerLevels `json:"power_level_content_override,omitempty"`
}

// CreateRoomResponse is the response from POST /createRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// StateEvent is an initial state event supplied at room creation.
type StateEvent struct {
	Type     ref.EventType `json:"type"`
	StateKey string        `json:"state_key"`
	Content  any           `json:"content"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage creates a plain-text m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: "m.text", Body: body}
}

// InviteRequest is the body of POST /rooms/{roomId}/invite.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// KickRequest is the body of POST /rooms/{roomId}/kick.
type KickRequest struct {
	UserID ref.UserID `json:"user_id"`
	Reason string     `json:"reason,omitempty"`
}

// SendEventResponse is returned by the send and state endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is the response from GET /account/whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is the response from GET /directory/room/{alias}.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// JoinedRoomsResponse is the response from GET /joined_rooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMember is one user's membership in a room.
type RoomMember struct {
	UserID      ref.UserID
	DisplayName string
	Membership  string
}

// RoomMembersResponse is the response from GET /rooms/{roomId}/members.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is one m.room.member state event.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   string            `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of an m.room.member event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}
