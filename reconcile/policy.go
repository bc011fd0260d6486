// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"time"

	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
)

// MinActionDelay is the floor for Policy.ActionDelay.
const MinActionDelay = 3400 * time.Millisecond

// Policy is the room policy shared by every reconciliation.
type Policy struct {
	// HomeServer owns the users the directory manages and the rooms the
	// reconciler may create.
	HomeServer ref.ServerName

	// CreateRooms allows creating home server rooms whose alias does
	// not resolve.
	CreateRooms bool

	// EncryptOnCreate adds an m.room.encryption initial state event to
	// created rooms.
	EncryptOnCreate bool

	// HistoryVisibility is enforced on every reconciled room. Empty
	// leaves it alone.
	HistoryVisibility string

	// Permissions are overlaid on the power levels of home server
	// rooms. Only thresholds and event levels are read; Users is
	// ignored. Nil leaves them alone.
	Permissions *schema.PowerLevels

	// ActionDelay separates consecutive invites and kicks in one room.
	// Values below MinActionDelay are raised to it.
	ActionDelay time.Duration
}

// Options gate which membership actions a reconciliation executes. The
// diff is computed either way; suppressed actions are reported as
// "would have been".
type Options struct {
	AllowInvite bool
	AllowKick   bool
}

// DryRun is the option set that changes nothing.
var DryRun = Options{}

// FullSync executes every action.
var FullSync = Options{AllowInvite: true, AllowKick: true}

// dryRun reports whether no membership action may run. A dry run also
// skips room creation and every state write.
func (o Options) dryRun() bool {
	return !o.AllowInvite && !o.AllowKick
}
