// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/inviter/lib/clock"
	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/lib/secret"
	"github.com/bureau-foundation/inviter/lib/testutil"
	"github.com/bureau-foundation/inviter/messaging"
	"github.com/bureau-foundation/inviter/messaging/messagingtest"
)

var (
	serverName = ref.MustParseServerName("example.org")
	agent      = ref.MustParseUserID("@inviter:example.org")
	alice      = ref.MustParseUserID("@alice:example.org")
	bob        = ref.MustParseUserID("@bob:example.org")
	carol      = ref.MustParseUserID("@carol:example.org")
	mallory    = ref.MustParseUserID("@mallory:example.org")
	dave       = ref.MustParseUserID("@dave:other.org")
	teamAlias  = ref.MustParseRoomAlias("#team:example.org")

	epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

type harness struct {
	homeserver *messagingtest.Homeserver
	clock      *clock.FakeClock
	registry   *prometheus.Registry
	reconciler *Reconciler
}

func newHarness(t *testing.T, configure ...func(*Policy)) *harness {
	t.Helper()
	fakeClock := clock.Fake(epoch)
	homeserver := messagingtest.New(t, messagingtest.Config{
		ServerName: serverName,
		Agent:      agent,
		Clock:      fakeClock,
	})

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserver.URL(),
		Logger:        slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	token, err := secret.NewFromString(homeserver.AccessToken())
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	session := client.SessionFromToken(agent, token)
	t.Cleanup(func() { session.Close() })

	policy := Policy{
		HomeServer:        serverName,
		CreateRooms:       true,
		EncryptOnCreate:   true,
		HistoryVisibility: schema.HistoryVisibilityShared,
		ActionDelay:       MinActionDelay,
	}
	for _, apply := range configure {
		apply(&policy)
	}

	registry := prometheus.NewRegistry()
	reconciler, err := New(Config{
		Session: session,
		Policy:  policy,
		Clock:   fakeClock,
		Logger:  slog.New(slog.DiscardHandler),
		Metrics: NewMetrics(registry),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{homeserver: homeserver, clock: fakeClock, registry: registry, reconciler: reconciler}
}

// managedRoom adds a room the agent has joined as admin.
func (h *harness) managedRoom(alias ref.RoomAlias) ref.RoomID {
	roomID := h.homeserver.AddRoom(alias)
	h.homeserver.SetMembership(roomID, agent, messaging.MembershipJoin)
	h.homeserver.SetUserLevel(roomID, agent, 100)
	return roomID
}

// join adds userID to roomID as a joined member at level.
func (h *harness) join(roomID ref.RoomID, userID ref.UserID, level int) {
	h.homeserver.SetMembership(roomID, userID, messaging.MembershipJoin)
	if level != 0 {
		h.homeserver.SetUserLevel(roomID, userID, level)
	}
}

type reconcileResult struct {
	report *Report
	err    error
}

// reconcile runs Reconcile in the background and advances the fake
// clock through exactly waits pacing delays.
func (h *harness) reconcile(t *testing.T, room directory.Room, options Options, waits int) (*Report, error) {
	t.Helper()
	done := make(chan reconcileResult, 1)
	go func() {
		report, err := h.reconciler.Reconcile(context.Background(), room, options)
		done <- reconcileResult{report, err}
	}()
	for range waits {
		h.clock.WaitForTimers(1)
		h.clock.Advance(MinActionDelay)
	}
	result := testutil.RequireReceive(t, done, 10*time.Second, "waiting for Reconcile")
	if result.report == nil {
		t.Fatal("Reconcile returned a nil report")
	}
	if pending := h.clock.PendingCount(); pending != 0 {
		t.Errorf("%d pacing timers still pending after Reconcile returned", pending)
	}
	return result.report, result.err
}

func room(alias ref.RoomAlias, members ...directory.Member) directory.Room {
	return directory.Room{Alias: alias, Members: members}
}

func member(userID ref.UserID, tier schema.Tier) directory.Member {
	return directory.Member{UserID: userID, Tier: tier}
}

func userIDs(users []ref.UserID) []string {
	names := make([]string, len(users))
	for index, userID := range users {
		names[index] = userID.String()
	}
	return names
}
