// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/inviter/lib/ref"

// Standard Matrix state event types read and written by the controller.
// All use the empty state key.
const (
	MatrixEventTypePowerLevels       ref.EventType = "m.room.power_levels"
	MatrixEventTypeRoomName          ref.EventType = "m.room.name"
	MatrixEventTypeCanonicalAlias    ref.EventType = "m.room.canonical_alias"
	MatrixEventTypeHistoryVisibility ref.EventType = "m.room.history_visibility"
	MatrixEventTypeEncryption        ref.EventType = "m.room.encryption"
)

// MatrixEventTypeMessage is the timeline event type for reports posted
// to the administration room.
const MatrixEventTypeMessage ref.EventType = "m.room.message"

// History visibility settings for m.room.history_visibility.
const (
	HistoryVisibilityInvited       = "invited"
	HistoryVisibilityJoined        = "joined"
	HistoryVisibilityShared        = "shared"
	HistoryVisibilityWorldReadable = "world_readable"
)

// ValidHistoryVisibility reports whether value is one of the four
// settings Matrix defines.
func ValidHistoryVisibility(value string) bool {
	switch value {
	case HistoryVisibilityInvited, HistoryVisibilityJoined,
		HistoryVisibilityShared, HistoryVisibilityWorldReadable:
		return true
	}
	return false
}

// EncryptionAlgorithmMegolm is the only room encryption algorithm in
// use by Matrix clients.
const EncryptionAlgorithmMegolm = "m.megolm.v1.aes-sha2"

// RoomNameContent is the content of m.room.name.
type RoomNameContent struct {
	Name string `json:"name"`
}

// CanonicalAliasContent is the content of m.room.canonical_alias.
type CanonicalAliasContent struct {
	Alias      string   `json:"alias,omitempty"`
	AltAliases []string `json:"alt_aliases,omitempty"`
}

// HistoryVisibilityContent is the content of m.room.history_visibility.
type HistoryVisibilityContent struct {
	HistoryVisibility string `json:"history_visibility"`
}

// EncryptionContent is the content of m.room.encryption.
type EncryptionContent struct {
	Algorithm string `json:"algorithm"`
}
