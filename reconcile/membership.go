// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/messaging"
)

// actualState is a room's current membership. Users who left or were
// banned are absent.
type actualState struct {
	joined  map[ref.UserID]bool
	invited map[ref.UserID]bool
}

func newActualState(members []messaging.RoomMember) actualState {
	state := actualState{
		joined:  make(map[ref.UserID]bool),
		invited: make(map[ref.UserID]bool),
	}
	for _, member := range members {
		switch member.Membership {
		case messaging.MembershipJoin:
			state.joined[member.UserID] = true
		case messaging.MembershipInvite:
			state.invited[member.UserID] = true
		}
	}
	return state
}

func (s actualState) present(userID ref.UserID) bool {
	return s.joined[userID] || s.invited[userID]
}

// occupants returns joined and invited users in a stable order.
func (s actualState) occupants() []ref.UserID {
	occupants := make([]ref.UserID, 0, len(s.joined)+len(s.invited))
	for userID := range s.joined {
		occupants = append(occupants, userID)
	}
	for userID := range s.invited {
		occupants = append(occupants, userID)
	}
	slices.SortFunc(occupants, compareUserIDs)
	return occupants
}

func compareUserIDs(a, b ref.UserID) int {
	return strings.Compare(a.String(), b.String())
}

// orderedMembers returns the room's members in listing order with
// duplicates merged to their highest tier.
func orderedMembers(room directory.Room) []directory.Member {
	membership := room.Membership()
	seen := make(map[ref.UserID]bool, len(membership))
	members := make([]directory.Member, 0, len(membership))
	for _, member := range room.Members {
		if seen[member.UserID] {
			continue
		}
		seen[member.UserID] = true
		members = append(members, directory.Member{UserID: member.UserID, Tier: membership[member.UserID]})
	}
	return members
}

type membershipDiff struct {
	invite []ref.UserID
	kick   []ref.UserID
}

// diffMembership lists desired users who are neither joined nor
// invited, and kickable occupants the listing does not name.
func (r *Reconciler) diffMembership(desired []directory.Member, membership directory.Membership, actual actualState, levels *schema.PowerLevels) membershipDiff {
	var diff membershipDiff
	for _, member := range desired {
		if !actual.present(member.UserID) {
			diff.invite = append(diff.invite, member.UserID)
		}
	}
	for _, userID := range actual.occupants() {
		if _, listed := membership[userID]; listed {
			continue
		}
		if r.IsKickable(levels, userID, false) {
			diff.kick = append(diff.kick, userID)
		}
	}
	return diff
}

// IsKickable reports whether the agent may kick userID: the user is not
// an admin, not the agent, and on the home server unless kickExternal.
func (r *Reconciler) IsKickable(levels *schema.PowerLevels, userID ref.UserID, kickExternal bool) bool {
	if levels.UserLevel(userID) >= schema.TierAdmin.Level() {
		return false
	}
	if userID == r.agent {
		return false
	}
	if userID.Server() != r.policy.HomeServer && !kickExternal {
		return false
	}
	return true
}

// executeMembership runs the diff: every invite, then every kick, each
// behind the pacer. A failed action is recorded and the rest continue.
// Only context cancellation stops it early.
func (r *Reconciler) executeMembership(ctx context.Context, logger *slog.Logger, roomID ref.RoomID, diff membershipDiff, options Options, pacer *pacer, report *Report) error {
	for _, userID := range diff.invite {
		if !options.AllowInvite {
			r.metrics.action(ActionInvite, "skipped")
			continue
		}
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		err := r.session.InviteUser(ctx, roomID, userID)
		r.recordAction(logger, report, ActionInvite, userID, err)
	}
	for _, userID := range diff.kick {
		if !options.AllowKick {
			r.metrics.action(ActionKick, "skipped")
			continue
		}
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		err := r.session.KickUser(ctx, roomID, userID, kickReason)
		r.recordAction(logger, report, ActionKick, userID, err)
	}
	return nil
}

func (r *Reconciler) recordAction(logger *slog.Logger, report *Report, action string, userID ref.UserID, err error) {
	r.metrics.action(action, actionResult(err))
	if err == nil {
		logger.Info("membership action applied", "action", action, "user_id", userID)
		return
	}
	transient := messaging.IsTransient(err)
	logger.Warn("membership action failed",
		"action", action,
		"user_id", userID,
		"error", err,
		"transient", transient,
	)
	report.fail(action, userID, err, transient)
}
