// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix state event types and content
// structures the controller reads and writes: power levels, room name,
// canonical alias, history visibility, and encryption. Event type
// constants (MatrixEventType*) are Matrix wire identifiers; Go structs
// define the JSON content.
//
// [Tier] is the three-step permission scale used by directory listings.
// Its numeric values are Matrix power levels, so a Tier can be written
// directly into [PowerLevels.Users].
//
// [ReadPowerLevels] fetches a room's m.room.power_levels through any
// [StateSession]; callers modify the result and write it back whole.
package schema
