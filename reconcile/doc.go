// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile brings Matrix rooms in line with their directory
// listing.
//
// A [Reconciler] takes one [directory.Room] at a time. It locates the
// room (creating it on the home server when allowed), checks that the
// agent can manage it, diffs membership against the listing, and issues
// invites before kicks through a pacer that keeps consecutive actions
// in a room at least [Policy.ActionDelay] apart. It then pushes a
// single combined m.room.power_levels update if anything differs and
// normalizes history visibility and the room name. The outcome of every
// step is collected in a [Report].
//
// Three safety rules hold throughout:
//
//   - an admin is never kicked, and never demoted by anyone but itself,
//   - users on other homeservers are only kicked on explicit request,
//   - the agent only leaves a room through [Reconciler.PrepareLeave],
//     which refuses unless another joined admin remains.
//
// All backend access goes through the [Session] port, which
// messaging.DirectSession implements. Tests run against
// messagingtest.Homeserver and a fake clock.
package reconcile
