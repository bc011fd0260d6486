// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/messaging"
	"github.com/bureau-foundation/inviter/messaging/messagingtest"
)

func TestReconcileCreatesMissingRoom(t *testing.T) {
	h := newHarness(t)

	report, err := h.reconcile(t, room(teamAlias,
		member(alice, schema.TierAdmin),
		member(bob, schema.TierStandard),
	), FullSync, 3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Status != StatusReconciled {
		t.Fatalf("status = %s (%v), want reconciled", report.Status, report.Err)
	}
	if !report.Created {
		t.Error("report does not record the room creation")
	}

	roomID, ok := h.homeserver.RoomID(teamAlias)
	if !ok {
		t.Fatal("room was not created")
	}
	if report.RoomID != roomID {
		t.Errorf("report room ID = %s, want %s", report.RoomID, roomID)
	}
	if _, encrypted := h.homeserver.State(roomID, schema.MatrixEventTypeEncryption, ""); !encrypted {
		t.Error("created room has no m.room.encryption state")
	}

	for _, userID := range []ref.UserID{alice, bob} {
		if got := h.homeserver.Membership(roomID, userID); got != messaging.MembershipInvite {
			t.Errorf("%s membership = %q, want invite", userID, got)
		}
	}
	levels := h.homeserver.PowerLevels(roomID)
	if got := levels.UserLevel(alice); got != 100 {
		t.Errorf("alice level = %d, want 100", got)
	}
	if got := levels.UserLevel(bob); got != 0 {
		t.Errorf("bob level = %d, want 0", got)
	}

	// Creation and every invite are one full delay apart.
	var paced []messagingtest.Mutation
	for _, mutation := range h.homeserver.Mutations() {
		if mutation.Kind == messagingtest.KindCreateRoom || mutation.Kind == messagingtest.KindInvite {
			paced = append(paced, mutation)
		}
	}
	if len(paced) != 3 {
		t.Fatalf("got %d create/invite mutations, want 3", len(paced))
	}
	if got := paced[0].At.Sub(epoch); got < MinActionDelay {
		t.Errorf("room created %v after start, want at least %v", got, MinActionDelay)
	}
	for index := 1; index < len(paced); index++ {
		if gap := paced[index].At.Sub(paced[index-1].At); gap < MinActionDelay {
			t.Errorf("%s at %d followed previous action after %v, want at least %v",
				paced[index].Kind, index, gap, MinActionDelay)
		}
	}

	var name schema.RoomNameContent
	content, _ := h.homeserver.State(roomID, schema.MatrixEventTypeRoomName, "")
	if err := json.Unmarshal(content, &name); err != nil || name.Name != "team" {
		t.Errorf("room name = %q (%v), want team", name.Name, err)
	}
}

func TestReconcileEmptyRoomInvitesEveryone(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(teamAlias)
	desired := room(teamAlias,
		member(alice, schema.TierStandard),
		member(bob, schema.TierModerator),
		member(carol, schema.TierStandard),
	)

	report, err := h.reconcile(t, desired, FullSync, 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := userIDs(report.Invited); !slices.Equal(got, []string{alice.String(), bob.String(), carol.String()}) {
		t.Errorf("invited = %v, want alice, bob, carol in listing order", got)
	}
	if len(report.Kicked) != 0 {
		t.Errorf("kicked = %v, want none", report.Kicked)
	}
	if invites := h.homeserver.MutationsOf(messagingtest.KindInvite); len(invites) != 3 {
		t.Errorf("homeserver saw %d invites, want 3", len(invites))
	}
	if kicks := h.homeserver.MutationsOf(messagingtest.KindKick); len(kicks) != 0 {
		t.Errorf("homeserver saw %d kicks, want 0", len(kicks))
	}
	if got := h.homeserver.PowerLevels(roomID).UserLevel(bob); got != 50 {
		t.Errorf("bob level = %d, want 50", got)
	}
	if got := promtestutil.ToFloat64(h.reconciler.metrics.actions.WithLabelValues(ActionInvite, "ok")); got != 3 {
		t.Errorf("invite ok counter = %v, want 3", got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(teamAlias)
	h.join(roomID, alice, 0)
	desired := room(teamAlias, member(alice, schema.TierAdmin), member(bob, schema.TierStandard))

	if _, err := h.reconcile(t, desired, FullSync, 0); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	h.homeserver.ResetMutations()

	report, err := h.reconcile(t, desired, FullSync, 0)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if len(report.Invited) != 0 || len(report.Kicked) != 0 || report.PowerLevelsChanged || len(report.Normalized) != 0 {
		t.Errorf("second pass found work: %+v", report)
	}
	if mutations := h.homeserver.Mutations(); len(mutations) != 0 {
		t.Errorf("second pass mutated the room: %+v", mutations)
	}
}

func TestReconcileNeverKicksAdmins(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(teamAlias)
	h.join(roomID, carol, 100)
	h.join(roomID, mallory, 0)
	h.join(roomID, dave, 0)
	h.homeserver.SetMembership(roomID, bob, messaging.MembershipInvite)

	report, err := h.reconcile(t, room(teamAlias, member(alice, schema.TierStandard)), FullSync, 2)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := userIDs(report.Kicked); !slices.Equal(got, []string{bob.String(), mallory.String()}) {
		t.Errorf("kicked = %v, want bob (invite withdrawn) and mallory only", got)
	}
	if got := h.homeserver.Membership(roomID, carol); got != messaging.MembershipJoin {
		t.Errorf("admin carol membership = %q, want join", got)
	}
	if got := h.homeserver.Membership(roomID, dave); got != messaging.MembershipJoin {
		t.Errorf("external dave membership = %q, want join", got)
	}
	if got := h.homeserver.Membership(roomID, agent); got != messaging.MembershipJoin {
		t.Errorf("agent membership = %q, want join", got)
	}

	// Invites run before kicks.
	var order []string
	for _, mutation := range h.homeserver.Mutations() {
		if mutation.Kind == messagingtest.KindInvite || mutation.Kind == messagingtest.KindKick {
			order = append(order, mutation.Kind+" "+mutation.Target)
		}
	}
	want := []string{"invite " + alice.String(), "kick " + bob.String(), "kick " + mallory.String()}
	if !slices.Equal(order, want) {
		t.Errorf("action order = %v, want %v", order, want)
	}
}

func TestReconcileDryRun(t *testing.T) {
	setup := func(t *testing.T) *harness {
		h := newHarness(t)
		roomID := h.managedRoom(teamAlias)
		h.join(roomID, mallory, 0)
		h.join(roomID, bob, 0)
		return h
	}
	desired := room(teamAlias, member(alice, schema.TierAdmin), member(bob, schema.TierModerator))

	dry := setup(t)
	dryReport, err := dry.reconcile(t, desired, DryRun, 0)
	if err != nil {
		t.Fatalf("dry Reconcile: %v", err)
	}
	if mutations := dry.homeserver.Mutations(); len(mutations) != 0 {
		t.Errorf("dry run mutated the homeserver: %+v", mutations)
	}

	live := setup(t)
	liveReport, err := live.reconcile(t, desired, FullSync, 1)
	if err != nil {
		t.Fatalf("live Reconcile: %v", err)
	}

	if !slices.Equal(userIDs(dryReport.Invited), userIDs(liveReport.Invited)) {
		t.Errorf("dry invited %v, live invited %v", dryReport.Invited, liveReport.Invited)
	}
	if !slices.Equal(userIDs(dryReport.Kicked), userIDs(liveReport.Kicked)) {
		t.Errorf("dry kicked %v, live kicked %v", dryReport.Kicked, liveReport.Kicked)
	}
	if dryReport.PowerLevelsChanged != liveReport.PowerLevelsChanged {
		t.Errorf("dry power level diff %v, live %v", dryReport.PowerLevelsChanged, liveReport.PowerLevelsChanged)
	}
	if len(dryReport.Normalized) != len(liveReport.Normalized) {
		t.Errorf("dry normalized %v, live %v", dryReport.Normalized, liveReport.Normalized)
	}
}

func TestReconcileDryRunMissingRoom(t *testing.T) {
	listed := room(teamAlias,
		member(alice, schema.TierAdmin),
		member(bob, schema.TierStandard),
	)

	live := newHarness(t)
	liveReport, err := live.reconcile(t, listed, FullSync, 3)
	if err != nil {
		t.Fatalf("live Reconcile: %v", err)
	}

	dry := newHarness(t)
	dryReport, err := dry.reconcile(t, listed, DryRun, 0)
	if err != nil {
		t.Fatalf("dry Reconcile: %v", err)
	}
	if dryReport.Status != StatusWouldCreate {
		t.Errorf("status = %s, want %s", dryReport.Status, StatusWouldCreate)
	}
	if _, created := dry.homeserver.RoomID(teamAlias); created {
		t.Error("dry run created the room")
	}
	if mutations := dry.homeserver.Mutations(); len(mutations) != 0 {
		t.Errorf("dry run issued %d mutations: %+v", len(mutations), mutations)
	}

	if !slices.Equal(userIDs(dryReport.Invited), userIDs(liveReport.Invited)) {
		t.Errorf("dry invites = %v, live invites = %v", userIDs(dryReport.Invited), userIDs(liveReport.Invited))
	}
	if len(dryReport.Kicked) != 0 {
		t.Errorf("dry kicks = %v, want none in a fresh room", userIDs(dryReport.Kicked))
	}
	if !dryReport.PowerLevelsChanged || !liveReport.PowerLevelsChanged {
		t.Errorf("power levels changed: dry %v, live %v, want both true (alice becomes admin)",
			dryReport.PowerLevelsChanged, liveReport.PowerLevelsChanged)
	}
}

func TestReconcileDryRunMissingRoomDefaultTiers(t *testing.T) {
	h := newHarness(t)
	report, err := h.reconcile(t, room(teamAlias,
		member(alice, schema.TierStandard),
		member(agent, schema.TierAdmin),
	), DryRun, 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := userIDs(report.Invited); !slices.Equal(got, []string{alice.String()}) {
		t.Errorf("invites = %v, want only alice (the agent creates the room)", got)
	}
	if report.PowerLevelsChanged {
		t.Error("listed tiers match a fresh room, but the report shows a power level change")
	}
}

func TestReconcileCautiousPassOnlyInvites(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(teamAlias)
	h.join(roomID, mallory, 0)

	report, err := h.reconcile(t, room(teamAlias, member(alice, schema.TierStandard)),
		Options{AllowInvite: true}, 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := userIDs(report.Kicked); !slices.Equal(got, []string{mallory.String()}) {
		t.Errorf("kick diff = %v, want mallory", got)
	}
	if got := h.homeserver.Membership(roomID, mallory); got != messaging.MembershipJoin {
		t.Errorf("mallory membership = %q, want join", got)
	}
	if got := h.homeserver.Membership(roomID, alice); got != messaging.MembershipInvite {
		t.Errorf("alice membership = %q, want invite", got)
	}
}

func TestReconcileUnresolvable(t *testing.T) {
	tests := []struct {
		name      string
		alias     ref.RoomAlias
		configure func(*Policy)
	}{
		{"foreign alias", ref.MustParseRoomAlias("#team:other.org"), func(*Policy) {}},
		{"creation disabled", teamAlias, func(policy *Policy) { policy.CreateRooms = false }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, test.configure)

			report, err := h.reconcile(t, room(test.alias, member(alice, schema.TierStandard)), FullSync, 0)
			if err != nil {
				t.Fatalf("Reconcile returned %v, want a report only", err)
			}
			if report.Status != StatusUnresolvable {
				t.Errorf("status = %s, want %s", report.Status, StatusUnresolvable)
			}
			if !errors.Is(report.Err, ErrRoomUnresolvable) {
				t.Errorf("report error = %v, want ErrRoomUnresolvable", report.Err)
			}
			if mutations := h.homeserver.Mutations(); len(mutations) != 0 {
				t.Errorf("mutations = %+v, want none", mutations)
			}
		})
	}
}

func TestReconcileNotManageable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, roomID ref.RoomID)
	}{
		{"not joined", func(h *harness, roomID ref.RoomID) {
			h.homeserver.SetMembership(roomID, agent, messaging.MembershipInvite)
		}},
		{"insufficient power", func(h *harness, roomID ref.RoomID) {
			h.homeserver.SetMembership(roomID, agent, messaging.MembershipJoin)
			h.homeserver.SetUserLevel(roomID, agent, 49)
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			roomID := h.homeserver.AddRoom(teamAlias)
			test.setup(h, roomID)

			report, err := h.reconcile(t, room(teamAlias, member(alice, schema.TierStandard)), FullSync, 0)
			if err != nil {
				t.Fatalf("Reconcile returned %v, want a report only", err)
			}
			if report.Status != StatusNotManageable {
				t.Errorf("status = %s, want %s", report.Status, StatusNotManageable)
			}
			if len(h.homeserver.Mutations()) != 0 {
				t.Error("unmanageable room was mutated")
			}
		})
	}
}

func TestReconcileNeverDemotesOtherAdmins(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(teamAlias)
	h.join(roomID, carol, 100)

	_, err := h.reconcile(t, room(teamAlias,
		member(carol, schema.TierStandard),
		member(agent, schema.TierModerator),
	), FullSync, 0)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	levels := h.homeserver.PowerLevels(roomID)
	if got := levels.UserLevel(carol); got != 100 {
		t.Errorf("carol level = %d, want 100 (admins are never demoted)", got)
	}
	if got := levels.UserLevel(agent); got != 50 {
		t.Errorf("agent level = %d, want 50 (the agent may demote itself)", got)
	}
}

func TestReconcilePermissionsOnlyOnHomeServer(t *testing.T) {
	h := newHarness(t, func(policy *Policy) {
		policy.Permissions = &schema.PowerLevels{
			Invite: schema.Level(50),
			Events: map[string]int{"m.room.topic": 100},
		}
	})
	homeRoom := h.managedRoom(teamAlias)
	foreignAlias := ref.MustParseRoomAlias("#partners:other.org")
	foreignRoom := h.managedRoom(foreignAlias)

	for _, alias := range []ref.RoomAlias{teamAlias, foreignAlias} {
		if _, err := h.reconcile(t, room(alias), FullSync, 0); err != nil {
			t.Fatalf("Reconcile %s: %v", alias, err)
		}
	}

	home := h.homeserver.PowerLevels(homeRoom)
	if home.Invite == nil || *home.Invite != 50 || home.Events["m.room.topic"] != 100 {
		t.Errorf("home room permissions not applied: invite=%v events=%v", home.Invite, home.Events)
	}
	foreign := h.homeserver.PowerLevels(foreignRoom)
	if foreign.Invite == nil || *foreign.Invite != 0 {
		t.Errorf("foreign room invite threshold = %v, want untouched 0", foreign.Invite)
	}
	if _, ok := foreign.Events["m.room.topic"]; ok {
		t.Error("foreign room received event overrides")
	}
}

func TestReconcileContinuesPastFailedInvite(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(teamAlias)
	h.homeserver.Fail(messagingtest.KindInvite, alice.String(), 429, messaging.ErrCodeLimitExceeded)

	report, err := h.reconcile(t, room(teamAlias,
		member(alice, schema.TierStandard),
		member(bob, schema.TierStandard),
	), FullSync, 1)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Status != StatusReconciled {
		t.Errorf("status = %s, want reconciled", report.Status)
	}
	if len(report.Failed) != 1 || report.Failed[0].UserID != alice || !report.Failed[0].Transient {
		t.Errorf("failed = %+v, want one transient failure for alice", report.Failed)
	}
	if got := h.homeserver.Membership(roomID, bob); got != messaging.MembershipInvite {
		t.Errorf("bob membership = %q, want invite", got)
	}
	// Exactly one attempt: transient failures wait for the next pass.
	if got := promtestutil.ToFloat64(h.reconciler.metrics.actions.WithLabelValues(ActionInvite, "transient")); got != 1 {
		t.Errorf("transient invite counter = %v, want 1", got)
	}
	if want := "reconciled, 1 invited, 1 failed"; !strings.Contains(report.Summary(), want) {
		t.Errorf("Summary() = %q, want it to contain %q", report.Summary(), want)
	}
	if markdown := report.Markdown(); !strings.Contains(markdown, "Users invited:\n- "+bob.String()+"\n\n") {
		t.Errorf("markdown should list only bob as invited:\n%s", markdown)
	}
}

func TestReconcilePowerLevelFailureAbortsRoom(t *testing.T) {
	h := newHarness(t)
	h.managedRoom(teamAlias)
	h.homeserver.Fail(messagingtest.KindState, string(schema.MatrixEventTypePowerLevels), 502, messaging.ErrCodeUnknown)

	report, err := h.reconcile(t, room(teamAlias, member(alice, schema.TierAdmin)), FullSync, 0)
	if err == nil {
		t.Fatal("expected an error when the power level push fails")
	}
	if report.Status != StatusFailed || !report.Transient {
		t.Errorf("status = %s transient = %v, want failed and transient", report.Status, report.Transient)
	}
	if len(report.Normalized) != 0 {
		t.Errorf("normalization ran after an aborted power level push: %v", report.Normalized)
	}
	var matrixErr *messaging.MatrixError
	if !errors.As(err, &matrixErr) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestReconcileKeepsExistingRoomName(t *testing.T) {
	h := newHarness(t)
	roomID := h.managedRoom(ref.MustParseRoomAlias("#release_engineering:example.org"))
	other := h.managedRoom(ref.MustParseRoomAlias("#named:example.org"))
	h.homeserver.SetState(other, schema.MatrixEventTypeRoomName, "", schema.RoomNameContent{Name: "Already named"})

	for _, alias := range []string{"#release_engineering:example.org", "#named:example.org"} {
		if _, err := h.reconcile(t, room(ref.MustParseRoomAlias(alias)), FullSync, 0); err != nil {
			t.Fatalf("Reconcile %s: %v", alias, err)
		}
	}

	names := map[ref.RoomID]string{roomID: "release engineering", other: "Already named"}
	for id, want := range names {
		var name schema.RoomNameContent
		content, _ := h.homeserver.State(id, schema.MatrixEventTypeRoomName, "")
		if err := json.Unmarshal(content, &name); err != nil || name.Name != want {
			t.Errorf("room %s name = %q (%v), want %q", id, name.Name, err, want)
		}
	}
}

func TestListManagedRooms(t *testing.T) {
	h := newHarness(t)
	managed := h.managedRoom(teamAlias)
	unjoined := ref.MustParseRoomAlias("#unjoined:example.org")
	h.homeserver.AddRoom(unjoined)
	missing := ref.MustParseRoomAlias("#missing:example.org")

	rooms, err := h.reconciler.ListManagedRooms(t.Context(), []directory.Room{
		room(teamAlias), room(unjoined), room(missing),
	})
	if err != nil {
		t.Fatalf("ListManagedRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Alias != teamAlias || rooms[0].RoomID != managed {
		t.Errorf("managed rooms = %+v, want only %s with its room ID", rooms, teamAlias)
	}
}

func TestIsKickable(t *testing.T) {
	h := newHarness(t)
	levels := &schema.PowerLevels{}
	levels.SetUserLevel(carol, 100)
	levels.SetUserLevel(bob, 50)

	tests := []struct {
		name         string
		userID       ref.UserID
		kickExternal bool
		want         bool
	}{
		{"standard home user", mallory, false, true},
		{"moderator", bob, false, true},
		{"admin", carol, false, false},
		{"admin with external kicks", carol, true, false},
		{"agent", agent, false, false},
		{"agent with external kicks", agent, true, false},
		{"external user", dave, false, false},
		{"external user with external kicks", dave, true, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := h.reconciler.IsKickable(levels, test.userID, test.kickExternal); got != test.want {
				t.Errorf("IsKickable(%s, %v) = %v, want %v", test.userID, test.kickExternal, got, test.want)
			}
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Policy: Policy{HomeServer: serverName}}); err == nil {
		t.Error("New without a session succeeded")
	}
}
