// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/inviter/lib/clock"
	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/messaging"
)

// tracerName identifies spans created by this package.
const tracerName = "github.com/bureau-foundation/inviter/reconcile"

// kickReason is sent with every directory-driven kick.
const kickReason = "not listed in the directory for this room"

// errWouldCreate stops a dry run at a missing but creatable room.
var errWouldCreate = errors.New("room would be created")

// Config holds the dependencies of a Reconciler.
type Config struct {
	// Session is the agent's Matrix session. Required.
	Session Session

	Policy Policy

	// Clock paces membership actions. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to unregistered metrics.
	Metrics *Metrics

	// Tracer defaults to the global tracer provider's tracer.
	Tracer trace.Tracer
}

// Reconciler applies directory listings to Matrix rooms on behalf of
// one agent account. Safe for concurrent use; each call works on
// freshly fetched room state.
type Reconciler struct {
	session Session
	agent   ref.UserID
	policy  Policy
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New creates a Reconciler.
func New(config Config) (*Reconciler, error) {
	if config.Session == nil {
		return nil, errors.New("reconcile: Session is required")
	}
	agent := config.Session.UserID()
	if agent.IsZero() {
		return nil, errors.New("reconcile: session has no user ID")
	}
	if config.Policy.HomeServer.IsZero() {
		return nil, errors.New("reconcile: Policy.HomeServer is required")
	}

	policy := config.Policy
	if policy.ActionDelay < MinActionDelay {
		policy.ActionDelay = MinActionDelay
	}
	if policy.HistoryVisibility != "" && !schema.ValidHistoryVisibility(policy.HistoryVisibility) {
		return nil, fmt.Errorf("reconcile: invalid history visibility %q", policy.HistoryVisibility)
	}

	reconciler := &Reconciler{
		session: config.Session,
		agent:   agent,
		policy:  policy,
		clock:   config.Clock,
		logger:  config.Logger,
		metrics: config.Metrics,
		tracer:  config.Tracer,
	}
	if reconciler.clock == nil {
		reconciler.clock = clock.Real()
	}
	if reconciler.logger == nil {
		reconciler.logger = slog.Default()
	}
	if reconciler.metrics == nil {
		reconciler.metrics = NewMetrics(nil)
	}
	if reconciler.tracer == nil {
		reconciler.tracer = otel.Tracer(tracerName)
	}
	return reconciler, nil
}

// Agent returns the user the reconciler acts as.
func (r *Reconciler) Agent() ref.UserID { return r.agent }

// Policy returns the effective policy, with ActionDelay raised to its
// floor.
func (r *Reconciler) Policy() Policy { return r.policy }

// Reconcile brings one room in line with its listing. The returned
// report is never nil. The error is non-nil only when a backend failure
// aborted the room, in which case the report's status is StatusFailed.
// Unresolvable and unmanageable rooms are reported, not returned as
// errors.
func (r *Reconciler) Reconcile(ctx context.Context, room directory.Room, options Options) (*Report, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.room", trace.WithAttributes(
		attribute.String("room.alias", room.Alias.String()),
		attribute.Bool("reconcile.allow_invite", options.AllowInvite),
		attribute.Bool("reconcile.allow_kick", options.AllowKick),
	))
	defer span.End()

	logger := r.logger.With("room", room.Alias)
	report := &Report{Alias: room.Alias, RoomID: room.RoomID, Options: options}

	err := r.reconcile(ctx, logger, room, options, report)
	if err != nil {
		err = fmt.Errorf("reconciling %s: %w", room.Alias, err)
		report.Status = StatusFailed
		report.Err = err
		report.Transient = messaging.IsTransient(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("room reconciliation failed", "error", err, "transient", report.Transient)
	} else {
		logger.Info("room reconciled",
			"status", report.Status,
			"room_id", report.RoomID,
			"invited", len(report.Invited),
			"kicked", len(report.Kicked),
			"failed", len(report.Failed),
		)
	}

	span.SetAttributes(
		attribute.String("room.id", report.RoomID.String()),
		attribute.String("reconcile.status", string(report.Status)),
		attribute.Int("reconcile.invited", len(report.Invited)),
		attribute.Int("reconcile.kicked", len(report.Kicked)),
	)
	r.metrics.room(report.Status)
	return report, err
}

func (r *Reconciler) reconcile(ctx context.Context, logger *slog.Logger, room directory.Room, options Options, report *Report) error {
	pacer := newPacer(r.clock, r.policy.ActionDelay)

	roomID, err := r.locate(ctx, logger, room, options, pacer, report)
	switch {
	case errors.Is(err, ErrRoomUnresolvable):
		logger.Warn("room could neither be found nor created")
		report.Status = StatusUnresolvable
		report.Err = err
		return nil
	case errors.Is(err, errWouldCreate):
		r.previewCreation(room, report)
		report.Status = StatusWouldCreate
		return nil
	case err != nil:
		return err
	}
	report.RoomID = roomID

	manageable, levels, err := r.manageable(ctx, roomID, nil)
	if err != nil {
		return err
	}
	if !manageable {
		logger.Warn("room is not manageable", "room_id", roomID)
		report.Status = StatusNotManageable
		report.Err = ErrRoomNotManageable
		return nil
	}

	members, err := r.session.GetRoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	actual := newActualState(members)
	desired := orderedMembers(room)
	diff := r.diffMembership(desired, room.Membership(), actual, levels)
	report.Invited = diff.invite
	report.Kicked = diff.kick

	if err := r.executeMembership(ctx, logger, roomID, diff, options, pacer, report); err != nil {
		return err
	}

	// Re-read: an overlapping pass may have changed power levels while
	// this one was pacing.
	levels, err = schema.ReadPowerLevels(ctx, r.session, roomID)
	if err != nil {
		return err
	}
	target, changed := r.desiredPowerLevels(levels, desired, room.Alias.Server() == r.policy.HomeServer)
	if changed {
		report.PowerLevelsChanged = true
		if !options.dryRun() {
			_, err := r.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypePowerLevels, "", target)
			r.metrics.action(ActionPowerLevels, actionResult(err))
			if err != nil {
				return fmt.Errorf("pushing power levels: %w", err)
			}
			logger.Info("power levels updated", "room_id", roomID)
		}
	}

	r.normalize(ctx, logger, roomID, options.dryRun(), report)

	report.Status = StatusReconciled
	return nil
}

// locate resolves the room's alias, creating the room when the alias
// is missing, on the home server, and creation is enabled.
func (r *Reconciler) locate(ctx context.Context, logger *slog.Logger, room directory.Room, options Options, pacer *pacer, report *Report) (ref.RoomID, error) {
	if !room.RoomID.IsZero() {
		return room.RoomID, nil
	}
	roomID, err := r.session.ResolveAlias(ctx, room.Alias)
	if err == nil {
		return roomID, nil
	}
	if !messaging.IsNotFound(err) {
		return ref.RoomID{}, err
	}

	if room.Alias.Server() != r.policy.HomeServer {
		return ref.RoomID{}, fmt.Errorf("%w: %s is not on %s", ErrRoomUnresolvable, room.Alias, r.policy.HomeServer)
	}
	if !r.policy.CreateRooms {
		return ref.RoomID{}, fmt.Errorf("%w: %s does not exist and room creation is disabled", ErrRoomUnresolvable, room.Alias)
	}
	if options.dryRun() {
		logger.Info("room does not exist and would be created")
		return ref.RoomID{}, errWouldCreate
	}

	if err := pacer.Hold(ctx); err != nil {
		return ref.RoomID{}, err
	}
	request := messaging.CreateRoomRequest{
		Alias:  room.Alias.Localpart(),
		Preset: messaging.PresetPrivateChat,
	}
	if r.policy.EncryptOnCreate {
		request.InitialState = append(request.InitialState, messaging.StateEvent{
			Type:    schema.MatrixEventTypeEncryption,
			Content: schema.EncryptionContent{Algorithm: schema.EncryptionAlgorithmMegolm},
		})
	}
	response, err := r.session.CreateRoom(ctx, request)
	r.metrics.action(ActionCreate, actionResult(err))
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("creating room: %w", err)
	}
	report.Created = true
	logger.Info("created room", "room_id", response.RoomID, "encrypted", r.policy.EncryptOnCreate)
	return response.RoomID, nil
}

// previewCreation fills a dry run's diff for a room that does not
// exist yet. A fresh room holds only the agent, at admin, so every
// other listed member would be invited and nobody kicked.
func (r *Reconciler) previewCreation(room directory.Room, report *Report) {
	desired := orderedMembers(room)
	for _, member := range desired {
		if member.UserID != r.agent {
			report.Invited = append(report.Invited, member.UserID)
		}
	}
	fresh := &schema.PowerLevels{}
	fresh.SetUserLevel(r.agent, schema.TierAdmin.Level())
	_, report.PowerLevelsChanged = r.desiredPowerLevels(fresh, desired, false)
}

// IsManageable reports whether the agent is joined to roomID with at
// least moderator power.
func (r *Reconciler) IsManageable(ctx context.Context, roomID ref.RoomID) (bool, error) {
	manageable, _, err := r.manageable(ctx, roomID, nil)
	return manageable, err
}

// manageable checks roomID against joined, fetching the joined rooms
// when joined is nil. The power levels are returned when the agent is
// joined.
func (r *Reconciler) manageable(ctx context.Context, roomID ref.RoomID, joined map[ref.RoomID]bool) (bool, *schema.PowerLevels, error) {
	if joined == nil {
		var err error
		joined, err = r.joinedRooms(ctx)
		if err != nil {
			return false, nil, err
		}
	}
	if !joined[roomID] {
		return false, nil, nil
	}
	levels, err := schema.ReadPowerLevels(ctx, r.session, roomID)
	if err != nil {
		return false, nil, err
	}
	return levels.UserLevel(r.agent) >= schema.TierModerator.Level(), levels, nil
}

func (r *Reconciler) joinedRooms(ctx context.Context) (map[ref.RoomID]bool, error) {
	rooms, err := r.session.JoinedRooms(ctx)
	if err != nil {
		return nil, err
	}
	joined := make(map[ref.RoomID]bool, len(rooms))
	for _, roomID := range rooms {
		joined[roomID] = true
	}
	return joined, nil
}

// ListManagedRooms resolves every room's alias and returns the rooms
// the agent can manage, with RoomID filled in. Rooms whose alias does
// not resolve are left out.
func (r *Reconciler) ListManagedRooms(ctx context.Context, rooms []directory.Room) ([]directory.Room, error) {
	joined, err := r.joinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing joined rooms: %w", err)
	}

	var managed []directory.Room
	for _, room := range rooms {
		roomID, err := r.session.ResolveAlias(ctx, room.Alias)
		if messaging.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", room.Alias, err)
		}
		ok, _, err := r.manageable(ctx, roomID, joined)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", room.Alias, err)
		}
		if ok {
			room.RoomID = roomID
			managed = append(managed, room)
		}
	}
	return managed, nil
}

// resolveManaged resolves alias and requires the room to be manageable.
func (r *Reconciler) resolveManaged(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, *schema.PowerLevels, error) {
	roomID, err := r.session.ResolveAlias(ctx, alias)
	if messaging.IsNotFound(err) {
		return ref.RoomID{}, nil, fmt.Errorf("%w: %s", ErrRoomUnresolvable, alias)
	}
	if err != nil {
		return ref.RoomID{}, nil, fmt.Errorf("resolving %s: %w", alias, err)
	}
	manageable, levels, err := r.manageable(ctx, roomID, nil)
	if err != nil {
		return ref.RoomID{}, nil, fmt.Errorf("checking %s: %w", alias, err)
	}
	if !manageable {
		return ref.RoomID{}, nil, fmt.Errorf("%w: %s", ErrRoomNotManageable, alias)
	}
	return roomID, levels, nil
}

func actionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case messaging.IsTransient(err):
		return "transient"
	default:
		return "failed"
	}
}
