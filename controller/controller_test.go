// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/reconcile"
)

var (
	teamAlias    = ref.MustParseRoomAlias("#team:example.org")
	opsAlias     = ref.MustParseRoomAlias("#ops:example.org")
	releaseAlias = ref.MustParseRoomAlias("#release:example.org")
	dave         = ref.MustParseUserID("@dave:other.org")
	epoch        = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

type providerFunc func(ctx context.Context) ([]directory.Room, error)

func (f providerFunc) Rooms(ctx context.Context) ([]directory.Room, error) { return f(ctx) }

func staticRooms(aliases ...ref.RoomAlias) directory.Provider {
	return providerFunc(func(context.Context) ([]directory.Room, error) {
		rooms := make([]directory.Room, len(aliases))
		for index, alias := range aliases {
			rooms[index] = directory.Room{Alias: alias}
		}
		return rooms, nil
	})
}

// stubReconciler records calls and answers from its hooks.
type stubReconciler struct {
	mu         sync.Mutex
	reconciled []ref.RoomAlias
	unmanaged  []ref.RoomAlias
	kicked     []ref.UserID

	reconcile func(ctx context.Context, room directory.Room) (*reconcile.Report, error)
	managed   map[ref.RoomAlias]bool
}

func (s *stubReconciler) Reconcile(ctx context.Context, room directory.Room, options reconcile.Options) (*reconcile.Report, error) {
	s.mu.Lock()
	s.reconciled = append(s.reconciled, room.Alias)
	s.mu.Unlock()
	if s.reconcile != nil {
		return s.reconcile(ctx, room)
	}
	return &reconcile.Report{Alias: room.Alias, Options: options, Status: reconcile.StatusReconciled}, nil
}

func (s *stubReconciler) ListManagedRooms(ctx context.Context, rooms []directory.Room) ([]directory.Room, error) {
	var managed []directory.Room
	for _, room := range rooms {
		if s.managed[room.Alias] {
			managed = append(managed, room)
		}
	}
	return managed, nil
}

func (s *stubReconciler) Unmanage(ctx context.Context, alias ref.RoomAlias, successor ref.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmanaged = append(s.unmanaged, alias)
	return nil
}

func (s *stubReconciler) InviteExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID, tier schema.Tier) error {
	return nil
}

func (s *stubReconciler) KickExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kicked = append(s.kicked, userID)
	return nil
}

func newController(t *testing.T, reconciler Reconciler, provider directory.Provider) *Controller {
	t.Helper()
	controller, err := New(Config{
		Reconciler: reconciler,
		Provider:   provider,
		Logger:     slog.New(slog.DiscardHandler),
		Metrics:    NewMetrics(nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return controller
}

func TestRunPassIsolatesPanics(t *testing.T) {
	stub := &stubReconciler{
		reconcile: func(ctx context.Context, room directory.Room) (*reconcile.Report, error) {
			if room.Alias == opsAlias {
				panic("nil power levels")
			}
			return &reconcile.Report{Alias: room.Alias, Status: reconcile.StatusReconciled}, nil
		},
	}
	controller := newController(t, stub, staticRooms(teamAlias, opsAlias, releaseAlias))

	result, err := controller.RunPass(t.Context(), reconcile.FullSync)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(result.Reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(result.Reports))
	}
	panicked := result.Reports[1]
	if panicked.Alias != opsAlias || panicked.Status != reconcile.StatusFailed {
		t.Errorf("panicking room report = %+v, want failed for %s", panicked, opsAlias)
	}
	if panicked.Err == nil || !strings.Contains(panicked.Err.Error(), "nil power levels") {
		t.Errorf("panic value not preserved: %v", panicked.Err)
	}
	if result.Reports[2].Status != reconcile.StatusReconciled {
		t.Errorf("room after the panic = %s, want reconciled", result.Reports[2].Status)
	}
	if got := result.Count(reconcile.StatusFailed); got != 1 {
		t.Errorf("failed count = %d, want 1", got)
	}
}

func TestRunPassKeepsGoingAfterRoomError(t *testing.T) {
	backendErr := errors.New("502 from homeserver")
	stub := &stubReconciler{
		reconcile: func(ctx context.Context, room directory.Room) (*reconcile.Report, error) {
			if room.Alias == teamAlias {
				return &reconcile.Report{Alias: room.Alias, Status: reconcile.StatusFailed, Err: backendErr}, backendErr
			}
			return &reconcile.Report{Alias: room.Alias, Status: reconcile.StatusReconciled}, nil
		},
	}
	controller := newController(t, stub, staticRooms(teamAlias, opsAlias))

	result, err := controller.RunPass(t.Context(), reconcile.FullSync)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if !slices.Equal(stub.reconciled, []ref.RoomAlias{teamAlias, opsAlias}) {
		t.Errorf("reconciled %v, want both rooms in order", stub.reconciled)
	}
	if !errors.Is(result.Reports[0].Err, backendErr) {
		t.Errorf("first report error = %v, want the backend error", result.Reports[0].Err)
	}
}

func TestRunPassAbortsOnIncompleteDirectory(t *testing.T) {
	stub := &stubReconciler{}
	metrics := NewMetrics(nil)
	controller, err := New(Config{
		Reconciler: stub,
		Provider: providerFunc(func(context.Context) ([]directory.Room, error) {
			return nil, &directory.IncompleteError{Missing: []string{"directory.path"}}
		}),
		Logger:  slog.New(slog.DiscardHandler),
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = controller.RunPass(t.Context(), reconcile.FullSync)
	var incomplete *directory.IncompleteError
	if !errors.As(err, &incomplete) || !errors.Is(err, directory.ErrIncomplete) {
		t.Fatalf("RunPass = %v, want *directory.IncompleteError", err)
	}
	if len(stub.reconciled) != 0 {
		t.Errorf("rooms reconciled despite incomplete directory: %v", stub.reconciled)
	}
	if got := promtestutil.ToFloat64(metrics.passes.WithLabelValues("full", "aborted")); got != 1 {
		t.Errorf("aborted pass counter = %v, want 1", got)
	}
}

func TestRunPassStopsBetweenRoomsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	var roomErr error
	stub := &stubReconciler{
		reconcile: func(ctx context.Context, room directory.Room) (*reconcile.Report, error) {
			cancel()
			// The room in progress keeps a live context so its
			// remaining invites and kicks still go out.
			roomErr = ctx.Err()
			return &reconcile.Report{Alias: room.Alias, Status: reconcile.StatusReconciled}, nil
		},
	}
	controller := newController(t, stub, staticRooms(teamAlias, opsAlias))

	result, err := controller.RunPass(ctx, reconcile.FullSync)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunPass = %v, want context.Canceled", err)
	}
	if len(result.Reports) != 1 || result.Reports[0].Status != reconcile.StatusReconciled {
		t.Errorf("got reports %+v, want the one room finished before cancellation", result.Reports)
	}
	if roomErr != nil {
		t.Errorf("room context error = %v, want the started room to run to completion", roomErr)
	}
	if !slices.Equal(stub.reconciled, []ref.RoomAlias{teamAlias}) {
		t.Errorf("reconciled = %v, want only %v", stub.reconciled, teamAlias)
	}
}

func TestRunPassMetrics(t *testing.T) {
	metrics := NewMetrics(nil)
	controller, err := New(Config{
		Reconciler: &stubReconciler{},
		Provider:   staticRooms(teamAlias, opsAlias),
		Logger:     slog.New(slog.DiscardHandler),
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := controller.RunPass(t.Context(), reconcile.Options{AllowInvite: true}); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if got := promtestutil.ToFloat64(metrics.passes.WithLabelValues("cautious", "completed")); got != 1 {
		t.Errorf("completed cautious passes = %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(metrics.rooms); got != 2 {
		t.Errorf("directory rooms gauge = %v, want 2", got)
	}
}

func TestUnmanageRequiresListedManagedRoom(t *testing.T) {
	stub := &stubReconciler{managed: map[ref.RoomAlias]bool{teamAlias: true, releaseAlias: true}}
	controller := newController(t, stub, staticRooms(teamAlias, opsAlias))

	if err := controller.Unmanage(t.Context(), opsAlias, ref.UserID{}); !errors.Is(err, ErrNotManaged) {
		t.Errorf("Unmanage(listed, unmanageable) = %v, want ErrNotManaged", err)
	}
	if err := controller.Unmanage(t.Context(), releaseAlias, ref.UserID{}); !errors.Is(err, ErrNotManaged) {
		t.Errorf("Unmanage(unlisted) = %v, want ErrNotManaged", err)
	}
	if err := controller.Unmanage(t.Context(), teamAlias, ref.UserID{}); err != nil {
		t.Fatalf("Unmanage(managed): %v", err)
	}
	if !slices.Equal(stub.unmanaged, []ref.RoomAlias{teamAlias}) {
		t.Errorf("reconciler unmanaged %v, want only %s", stub.unmanaged, teamAlias)
	}
}

func TestKickExternalRequiresManagedRoom(t *testing.T) {
	stub := &stubReconciler{managed: map[ref.RoomAlias]bool{teamAlias: true}}
	controller := newController(t, stub, staticRooms(teamAlias, opsAlias))

	if err := controller.KickExternal(t.Context(), opsAlias, dave); !errors.Is(err, ErrNotManaged) {
		t.Errorf("KickExternal(unmanaged) = %v, want ErrNotManaged", err)
	}
	if err := controller.KickExternal(t.Context(), teamAlias, dave); err != nil {
		t.Fatalf("KickExternal: %v", err)
	}
	if !slices.Equal(stub.kicked, []ref.UserID{dave}) {
		t.Errorf("kicked %v, want dave", stub.kicked)
	}
}

func TestPassResultMarkdownSkipsQuietRooms(t *testing.T) {
	result := &PassResult{
		Options: reconcile.FullSync,
		Reports: []*reconcile.Report{
			{Alias: teamAlias, Options: reconcile.FullSync, Status: reconcile.StatusReconciled},
			{Alias: opsAlias, Options: reconcile.FullSync, Status: reconcile.StatusReconciled, Invited: []ref.UserID{dave}},
		},
	}
	markdown := result.Markdown()
	if strings.Contains(markdown, teamAlias.String()) {
		t.Errorf("quiet room included:\n%s", markdown)
	}
	if !strings.Contains(markdown, opsAlias.String()) {
		t.Errorf("changed room missing:\n%s", markdown)
	}

	quiet := &PassResult{Reports: result.Reports[:1]}
	if got := quiet.Markdown(); got != "" {
		t.Errorf("quiet pass markdown = %q, want empty", got)
	}
}
