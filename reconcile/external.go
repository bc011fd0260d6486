// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
)

// InviteExternal invites a user from another homeserver into a managed
// room and gives them tier. Home server users are refused with
// ErrDirectoryUser: their membership comes from the directory. An admin
// added this way cannot be removed by the agent afterwards.
func (r *Reconciler) InviteExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID, tier schema.Tier) error {
	if userID.Server() == r.policy.HomeServer {
		return fmt.Errorf("%w: %s", ErrDirectoryUser, userID)
	}
	roomID, levels, err := r.resolveManaged(ctx, alias)
	if err != nil {
		return err
	}
	if err := r.addMember(ctx, roomID, levels, userID, tier); err != nil {
		return err
	}
	r.logger.Info("external member invited", "room", alias, "user_id", userID, "tier", tier)
	return nil
}

// KickExternal kicks a user from another homeserver out of a managed
// room. Admins and the agent are refused with ErrNotKickable.
func (r *Reconciler) KickExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID) error {
	if userID.Server() == r.policy.HomeServer {
		return fmt.Errorf("%w: %s", ErrDirectoryUser, userID)
	}
	roomID, levels, err := r.resolveManaged(ctx, alias)
	if err != nil {
		return err
	}
	if !r.IsKickable(levels, userID, true) {
		return fmt.Errorf("%w: %s in %s", ErrNotKickable, userID, alias)
	}
	err = r.session.KickUser(ctx, roomID, userID, "removed by an administrator")
	r.metrics.action(ActionKick, actionResult(err))
	if err != nil {
		return err
	}
	r.logger.Info("external member kicked", "room", alias, "user_id", userID)
	return nil
}

// addMember invites userID unless they are already joined or invited,
// then sets their tier under the admin-demotion guard.
func (r *Reconciler) addMember(ctx context.Context, roomID ref.RoomID, levels *schema.PowerLevels, userID ref.UserID, tier schema.Tier) error {
	members, err := r.session.GetRoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	if !newActualState(members).present(userID) {
		err := r.session.InviteUser(ctx, roomID, userID)
		r.metrics.action(ActionInvite, actionResult(err))
		if err != nil {
			return err
		}
	}

	target, changed := r.desiredPowerLevels(levels, []directory.Member{{UserID: userID, Tier: tier}}, false)
	if !changed {
		return nil
	}
	_, err = r.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypePowerLevels, "", target)
	r.metrics.action(ActionPowerLevels, actionResult(err))
	return err
}
