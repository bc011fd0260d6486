// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/inviter/lib/ref"
)

// Status is the terminal outcome of one room's reconciliation.
type Status string

const (
	// StatusReconciled means every step ran. Individual actions may
	// still have failed; see Report.Failed.
	StatusReconciled Status = "reconciled"

	// StatusUnresolvable means the alias did not resolve and the room
	// could not be created.
	StatusUnresolvable Status = "unresolvable"

	// StatusWouldCreate means a dry run found the room missing and
	// creatable.
	StatusWouldCreate Status = "would_create"

	// StatusNotManageable means the agent is not joined or lacks
	// moderator power. Expected for rooms the agent has not been
	// invited into yet.
	StatusNotManageable Status = "not_manageable"

	// StatusFailed means a backend error aborted the room.
	StatusFailed Status = "failed"
)

// Action names used in FailedAction and metrics.
const (
	ActionCreate      = "create"
	ActionInvite      = "invite"
	ActionKick        = "kick"
	ActionPowerLevels = "power_levels"
	ActionLeave       = "leave"
)

// FailedAction is one backend call that failed without aborting the
// room.
type FailedAction struct {
	Action string
	UserID ref.UserID
	Err    error

	// Transient failures (rate limiting, 5xx, network) are left for the
	// next pass. Nothing is retried within a pass.
	Transient bool
}

// Report is the outcome of one room's reconciliation.
type Report struct {
	Alias  ref.RoomAlias
	RoomID ref.RoomID

	// Options the reconciliation ran with. Invited and Kicked list
	// users whose action was suppressed by Options as well, so a dry
	// run reports the same diff as a live run.
	Options Options

	Created bool

	Invited []ref.UserID
	Kicked  []ref.UserID

	// PowerLevelsChanged is set when the power level diff was
	// non-empty, whether or not it was pushed.
	PowerLevelsChanged bool

	// Normalized lists room settings that were (or in a dry run would
	// have been) rewritten, such as the history visibility.
	Normalized []string

	Failed   []FailedAction
	Warnings []string

	Status Status

	// Err is the cause for StatusFailed, StatusUnresolvable, and
	// StatusNotManageable.
	Err error

	// Transient is set when Err is a rate limit, 5xx, or network
	// failure that the next pass may not hit.
	Transient bool
}

func (r *Report) fail(action string, userID ref.UserID, err error, transient bool) {
	r.Failed = append(r.Failed, FailedAction{Action: action, UserID: userID, Err: err, Transient: transient})
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary is a one-line description for logs and terminal output.
func (r *Report) Summary() string {
	var summary strings.Builder
	summary.WriteString(r.Alias.String())
	summary.WriteString(": ")
	summary.WriteString(string(r.Status))
	if invited := r.applied(ActionInvite, r.Invited); len(invited) > 0 {
		fmt.Fprintf(&summary, ", %d %s", len(invited), r.verb(r.Options.AllowInvite, "invited"))
	}
	if kicked := r.applied(ActionKick, r.Kicked); len(kicked) > 0 {
		fmt.Fprintf(&summary, ", %d %s", len(kicked), r.verb(r.Options.AllowKick, "kicked"))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&summary, ", %d failed", len(r.Failed))
	}
	if r.Err != nil {
		fmt.Fprintf(&summary, " (%v)", r.Err)
	}
	return summary.String()
}

// applied drops the users whose action failed; they are listed under
// Failed instead.
func (r *Report) applied(action string, users []ref.UserID) []ref.UserID {
	if len(r.Failed) == 0 {
		return users
	}
	failed := make(map[ref.UserID]bool, len(r.Failed))
	for _, entry := range r.Failed {
		if entry.Action == action {
			failed[entry.UserID] = true
		}
	}
	kept := make([]ref.UserID, 0, len(users))
	for _, userID := range users {
		if !failed[userID] {
			kept = append(kept, userID)
		}
	}
	return kept
}

func (r *Report) verb(applied bool, past string) string {
	if applied {
		return past
	}
	return "would have been " + past
}

// Markdown renders the report for the administration room.
func (r *Report) Markdown() string {
	var markdown strings.Builder

	fmt.Fprintf(&markdown, "**%s**", r.Alias)
	if !r.RoomID.IsZero() {
		fmt.Fprintf(&markdown, " (`%s`)", r.RoomID)
	}
	markdown.WriteString("\n\n")

	if r.Created {
		markdown.WriteString("Created the room.\n\n")
	}
	writeUserList(&markdown, "Users "+r.verb(r.Options.AllowInvite, "invited"), r.applied(ActionInvite, r.Invited))
	writeUserList(&markdown, "Users "+r.verb(r.Options.AllowKick, "kicked"), r.applied(ActionKick, r.Kicked))

	if r.PowerLevelsChanged {
		if r.Options.dryRun() {
			markdown.WriteString("Power levels would have been updated.\n\n")
		} else {
			markdown.WriteString("Power levels updated.\n\n")
		}
	}
	for _, normalized := range r.Normalized {
		if r.Options.dryRun() {
			fmt.Fprintf(&markdown, "Would set %s.\n\n", normalized)
		} else {
			fmt.Fprintf(&markdown, "Set %s.\n\n", normalized)
		}
	}

	if len(r.Failed) > 0 {
		markdown.WriteString("Failed:\n")
		for _, failed := range r.Failed {
			fmt.Fprintf(&markdown, "- %s", failed.Action)
			if !failed.UserID.IsZero() {
				fmt.Fprintf(&markdown, " %s", failed.UserID)
			}
			fmt.Fprintf(&markdown, ": %v", failed.Err)
			if failed.Transient {
				markdown.WriteString(" (will retry next pass)")
			}
			markdown.WriteString("\n")
		}
		markdown.WriteString("\n")
	}
	if len(r.Warnings) > 0 {
		markdown.WriteString("Warnings:\n")
		for _, warning := range r.Warnings {
			fmt.Fprintf(&markdown, "- %s\n", warning)
		}
		markdown.WriteString("\n")
	}

	markdown.WriteString(r.statusLine())
	markdown.WriteString("\n")
	return markdown.String()
}

func (r *Report) statusLine() string {
	switch r.Status {
	case StatusReconciled:
		if len(r.Failed) > 0 {
			return "reconciled with failures ⚠️"
		}
		return "successful ✅"
	case StatusUnresolvable:
		return "Room could neither be found nor created."
	case StatusWouldCreate:
		return "Room does not exist and would have been created."
	case StatusNotManageable:
		return "Room is not manageable. Invite me and give me at least moderator power."
	case StatusFailed:
		return fmt.Sprintf("failed ❌: %v", r.Err)
	}
	return string(r.Status)
}

func writeUserList(markdown *strings.Builder, heading string, users []ref.UserID) {
	if len(users) == 0 {
		return
	}
	markdown.WriteString(heading)
	markdown.WriteString(":\n")
	for _, userID := range users {
		fmt.Fprintf(markdown, "- %s\n", userID)
	}
	markdown.WriteString("\n")
}
