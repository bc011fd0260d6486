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

// minAdminsToLeave counts the agent: one other joined admin must
// remain after it leaves.
const minAdminsToLeave = 2

// PrepareLeave checks that the agent can leave roomID without
// stranding it and demotes the agent to standard power. A non-zero
// successor must have joined the room; an outstanding invite is not
// enough. At least two joined admins, the agent included, must exist.
// When either check fails the result is a *SafetyViolationError and
// nothing is changed.
//
// The demotion is a real power level update made while the agent is
// still a member, so a later invite of the same account does not
// inherit admin power. The caller performs the leave.
func (r *Reconciler) PrepareLeave(ctx context.Context, roomID ref.RoomID, successor ref.UserID) error {
	members, err := r.session.GetRoomMembers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("fetching members of %s: %w", roomID, err)
	}
	actual := newActualState(members)

	if !successor.IsZero() && !actual.joined[successor] {
		return &SafetyViolationError{Reason: fmt.Sprintf("successor %s has not joined %s", successor, roomID)}
	}

	levels, err := schema.ReadPowerLevels(ctx, r.session, roomID)
	if err != nil {
		return err
	}
	admins := 0
	for _, userID := range levels.Admins() {
		if actual.joined[userID] {
			admins++
		}
	}
	if admins < minAdminsToLeave {
		return &SafetyViolationError{Reason: fmt.Sprintf("%s has %d joined admin(s), need at least %d", roomID, admins, minAdminsToLeave)}
	}

	target, changed := r.desiredPowerLevels(levels, []directory.Member{{UserID: r.agent, Tier: schema.TierStandard}}, false)
	if !changed {
		return nil
	}
	_, err = r.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypePowerLevels, "", target)
	r.metrics.action(ActionPowerLevels, actionResult(err))
	if err != nil {
		return fmt.Errorf("demoting %s in %s: %w", r.agent, roomID, err)
	}
	r.logger.Info("demoted self before leaving", "room_id", roomID, "admins", admins)
	return nil
}

// Unmanage hands a managed room over and leaves it. A non-zero
// successor is invited if needed and made admin first; the handoff
// still requires them to have joined, so a fresh successor usually
// takes two calls: one that invites them and fails the safety check,
// and one after they accept.
func (r *Reconciler) Unmanage(ctx context.Context, alias ref.RoomAlias, successor ref.UserID) error {
	roomID, levels, err := r.resolveManaged(ctx, alias)
	if err != nil {
		return err
	}
	logger := r.logger.With("room", alias, "room_id", roomID)

	if !successor.IsZero() {
		if err := r.addMember(ctx, roomID, levels, successor, schema.TierAdmin); err != nil {
			return fmt.Errorf("preparing successor %s: %w", successor, err)
		}
		logger.Info("successor invited and promoted", "user_id", successor)
	}

	if err := r.PrepareLeave(ctx, roomID, successor); err != nil {
		return err
	}
	err = r.session.LeaveRoom(ctx, roomID)
	r.metrics.action(ActionLeave, actionResult(err))
	if err != nil {
		return fmt.Errorf("leaving %s: %w", alias, err)
	}
	logger.Info("left room")
	return nil
}
