// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers.
//
// Every identifier the controller handles (user IDs, room aliases, room
// IDs, server names, event IDs) is parsed exactly once at the boundary
// where it enters the process: configuration loading, directory
// listings, command arguments, and homeserver responses. Business logic
// receives the parsed value and asks it for its parts ([UserID.Server],
// [RoomAlias.Localpart]) instead of splitting strings.
//
// [UserID] and [RoomAlias] store their localpart and server separately,
// so two values are equal (==) exactly when both parts match. They are
// comparable and can key maps. The canonical serialization form is the
// full Matrix identifier (@localpart:server, #localpart:server), and
// JSON/YAML marshaling uses it via encoding.TextMarshaler.
package ref
