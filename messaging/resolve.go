// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/inviter/lib/ref"
)

// StateReader reads raw state event content. DirectSession implements
// it.
type StateReader interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
}

// GetState reads a typed state event from a Matrix room:
//
//	name, err := messaging.GetState[schema.RoomNameContent](ctx, session, roomID, schema.MatrixEventTypeRoomName, "")
//
// Returns an error if the state event does not exist (M_NOT_FOUND) or
// if the content cannot be unmarshaled into T.
func GetState[T any](ctx context.Context, session StateReader, roomID ref.RoomID, eventType ref.EventType, stateKey string) (T, error) {
	var zero T
	content, err := session.GetStateEvent(ctx, roomID, eventType, stateKey)
	if err != nil {
		return zero, fmt.Errorf("reading %s[%q] from room %s: %w", eventType, stateKey, roomID, err)
	}
	var result T
	if err := json.Unmarshal(content, &result); err != nil {
		return zero, fmt.Errorf("unmarshaling %s from room %s: %w", eventType, roomID, err)
	}
	return result, nil
}

// AliasResolver resolves room aliases. DirectSession implements it.
type AliasResolver interface {
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
}

// ResolveRoom turns a room ID or alias string into a room ID, resolving
// aliases through the homeserver directory.
func ResolveRoom(ctx context.Context, session AliasResolver, identifier string) (ref.RoomID, error) {
	if roomID, err := ref.ParseRoomID(identifier); err == nil {
		return roomID, nil
	}
	alias, err := ref.ParseRoomAlias(identifier)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("%q is neither a room ID nor a room alias", identifier)
	}
	return session.ResolveAlias(ctx, alias)
}
