// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/messaging"
)

// normalize enforces the history visibility policy and gives unnamed
// rooms a name derived from their canonical alias. Failures become
// report warnings.
func (r *Reconciler) normalize(ctx context.Context, logger *slog.Logger, roomID ref.RoomID, dryRun bool, report *Report) {
	if r.policy.HistoryVisibility != "" {
		changed, err := r.ensureHistoryVisibility(ctx, roomID, dryRun)
		switch {
		case err != nil:
			logger.Warn("ensuring history visibility failed", "room_id", roomID, "error", err)
			report.warn("history visibility: %v", err)
		case changed:
			report.Normalized = append(report.Normalized, "history visibility to "+r.policy.HistoryVisibility)
		}
	}

	name, err := r.ensureRoomName(ctx, roomID, dryRun)
	switch {
	case err != nil:
		logger.Warn("ensuring room name failed", "room_id", roomID, "error", err)
		report.warn("room name: %v", err)
	case name != "":
		report.Normalized = append(report.Normalized, fmt.Sprintf("room name to %q", name))
	}
}

// ensureHistoryVisibility writes the policy's history visibility if the
// room has a different one. Returns whether it differed.
func (r *Reconciler) ensureHistoryVisibility(ctx context.Context, roomID ref.RoomID, dryRun bool) (bool, error) {
	current, err := messaging.GetState[schema.HistoryVisibilityContent](ctx, r.session, roomID, schema.MatrixEventTypeHistoryVisibility, "")
	if err != nil && !messaging.IsNotFound(err) {
		return false, err
	}
	if current.HistoryVisibility == r.policy.HistoryVisibility {
		return false, nil
	}
	if dryRun {
		return true, nil
	}
	content := schema.HistoryVisibilityContent{HistoryVisibility: r.policy.HistoryVisibility}
	if _, err := r.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypeHistoryVisibility, "", content); err != nil {
		return false, err
	}
	return true, nil
}

// ensureRoomName names an unnamed room after its canonical alias, with
// underscores in the localpart turned into spaces. Returns the name it
// set, or "" when the room already has a name or has no canonical
// alias.
func (r *Reconciler) ensureRoomName(ctx context.Context, roomID ref.RoomID, dryRun bool) (string, error) {
	current, err := messaging.GetState[schema.RoomNameContent](ctx, r.session, roomID, schema.MatrixEventTypeRoomName, "")
	if err != nil && !messaging.IsNotFound(err) {
		return "", err
	}
	if current.Name != "" {
		return "", nil
	}

	canonical, err := messaging.GetState[schema.CanonicalAliasContent](ctx, r.session, roomID, schema.MatrixEventTypeCanonicalAlias, "")
	if messaging.IsNotFound(err) || (err == nil && canonical.Alias == "") {
		r.logger.Debug("room has no canonical alias to derive a name from", "room_id", roomID)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	alias, err := ref.ParseRoomAlias(canonical.Alias)
	if err != nil {
		return "", fmt.Errorf("canonical alias: %w", err)
	}

	name := strings.ReplaceAll(alias.Localpart(), "_", " ")
	if dryRun {
		return name, nil
	}
	if _, err := r.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypeRoomName, "", schema.RoomNameContent{Name: name}); err != nil {
		return "", err
	}
	return name, nil
}
