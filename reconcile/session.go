// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/messaging"
)

// Session is the slice of the Matrix client-server API the reconciler
// uses. *messaging.DirectSession satisfies it.
type Session interface {
	UserID() ref.UserID
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error)
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error)
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error
	KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error
}

var _ Session = (*messaging.DirectSession)(nil)
