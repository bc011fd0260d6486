// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/schema"
)

// desiredPowerLevels returns the power levels the room should have and
// whether they differ from current. Each listed member gets their tier
// unless they are already an admin; the agent may change its own
// level even then. withPermissions overlays the policy thresholds,
// which only apply to home server rooms.
func (r *Reconciler) desiredPowerLevels(current *schema.PowerLevels, members []directory.Member, withPermissions bool) (*schema.PowerLevels, bool) {
	target := current.Clone()
	for _, member := range members {
		level := current.UserLevel(member.UserID)
		if level >= schema.TierAdmin.Level() && member.UserID != r.agent {
			continue
		}
		if level != member.Tier.Level() {
			target.SetUserLevel(member.UserID, member.Tier.Level())
		}
	}

	if withPermissions && r.policy.Permissions != nil {
		overlayPermissions(target, r.policy.Permissions)
	}
	return target, !target.Equal(current)
}

// overlayPermissions copies every threshold set in permissions onto
// target. Event levels are merged; events permissions does not name
// keep their current level.
func overlayPermissions(target, permissions *schema.PowerLevels) {
	overlay := func(field **int, value *int) {
		if value != nil {
			*field = schema.Level(*value)
		}
	}
	overlay(&target.UsersDefault, permissions.UsersDefault)
	overlay(&target.EventsDefault, permissions.EventsDefault)
	overlay(&target.StateDefault, permissions.StateDefault)
	overlay(&target.Invite, permissions.Invite)
	overlay(&target.Kick, permissions.Kick)
	overlay(&target.Ban, permissions.Ban)
	overlay(&target.Redact, permissions.Redact)
	for eventType, level := range permissions.Events {
		if target.Events == nil {
			target.Events = make(map[string]int)
		}
		target.Events[eventType] = level
	}
}
