// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomUnresolvable means the alias does not resolve and the room
	// may not be created: it is on another homeserver or creation is
	// disabled.
	ErrRoomUnresolvable = errors.New("room can neither be found nor created")

	// ErrRoomNotManageable means the agent is not joined to the room or
	// lacks moderator power in it.
	ErrRoomNotManageable = errors.New("room is not manageable")

	// ErrSafetyViolation is matched by every *SafetyViolationError.
	ErrSafetyViolation = errors.New("safety violation")

	// ErrNotKickable means the user is an admin or the agent itself.
	ErrNotKickable = errors.New("user is not kickable")

	// ErrDirectoryUser means an external-member operation named a home
	// server user, whose membership the directory owns.
	ErrDirectoryUser = errors.New("user is on the home server and managed by the directory")
)

// SafetyViolationError reports a refused handoff. No state was changed.
type SafetyViolationError struct {
	Reason string
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSafetyViolation, e.Reason)
}

// Is reports whether target is ErrSafetyViolation.
func (e *SafetyViolationError) Is(target error) bool { return target == ErrSafetyViolation }
