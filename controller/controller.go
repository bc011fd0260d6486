// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller runs reconciliation passes over the directory
// listing, on a schedule or on demand, and delivers their reports.
//
// A pass re-reads the listing from the directory provider and
// reconciles each room in turn. One room's failure, or panic, becomes
// that room's report and never stops the pass. Nothing is kept between
// passes: every pass starts from the listing and the homeserver's
// current state, so overlapping passes converge on the same result.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/bureau-foundation/inviter/lib/clock"
	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/reconcile"
)

// ErrNotManaged means a command named a room that is not in the
// directory listing or that the agent cannot manage.
var ErrNotManaged = errors.New("room is not managed")

// Reconciler is the subset of *reconcile.Reconciler the controller
// drives.
type Reconciler interface {
	Reconcile(ctx context.Context, room directory.Room, options reconcile.Options) (*reconcile.Report, error)
	ListManagedRooms(ctx context.Context, rooms []directory.Room) ([]directory.Room, error)
	Unmanage(ctx context.Context, alias ref.RoomAlias, successor ref.UserID) error
	InviteExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID, tier schema.Tier) error
	KickExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID) error
}

var _ Reconciler = (*reconcile.Reconciler)(nil)

// Config holds a Controller's collaborators.
type Config struct {
	Reconciler Reconciler
	Provider   directory.Provider

	// Notifier receives the report of every pass. Nil disables
	// delivery.
	Notifier *Notifier

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Controller runs passes and the single-room commands.
type Controller struct {
	reconciler Reconciler
	provider   directory.Provider
	notifier   *Notifier
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *Metrics
}

// New validates config and fills defaults.
func New(config Config) (*Controller, error) {
	if config.Reconciler == nil {
		return nil, errors.New("controller: reconciler is required")
	}
	if config.Provider == nil {
		return nil, errors.New("controller: directory provider is required")
	}
	controller := &Controller{
		reconciler: config.Reconciler,
		provider:   config.Provider,
		notifier:   config.Notifier,
		clock:      config.Clock,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}
	if controller.clock == nil {
		controller.clock = clock.Real()
	}
	if controller.logger == nil {
		controller.logger = slog.Default()
	}
	if controller.metrics == nil {
		controller.metrics = NewMetrics(nil)
	}
	return controller, nil
}

// RunPass reconciles every room in the listing with options. An
// incomplete directory configuration aborts the pass before any room
// is touched and is returned as a *directory.IncompleteError. Context
// cancellation stops the pass between rooms: a room already started
// runs to completion, and the reports gathered so far are returned
// with the context's error.
func (c *Controller) RunPass(ctx context.Context, options reconcile.Options) (*PassResult, error) {
	result := &PassResult{Options: options, Started: c.clock.Now()}
	passMode := mode(options)
	logger := c.logger.With("mode", passMode)

	rooms, err := c.provider.Rooms(ctx)
	if err != nil {
		c.metrics.passes.WithLabelValues(passMode, "aborted").Inc()
		if errors.Is(err, directory.ErrIncomplete) {
			logger.Warn("directory configuration is incomplete, pass skipped", "error", err)
		} else {
			logger.Error("reading directory listing failed", "error", err)
		}
		return result, fmt.Errorf("reading directory listing: %w", err)
	}
	c.metrics.rooms.Set(float64(len(rooms)))
	logger.Info("pass started", "rooms", len(rooms))

	for _, room := range rooms {
		if err := ctx.Err(); err != nil {
			result.Duration = c.clock.Now().Sub(result.Started)
			c.metrics.passes.WithLabelValues(passMode, "aborted").Inc()
			logger.Warn("pass cancelled", "completed_rooms", len(result.Reports), "rooms", len(rooms))
			return result, err
		}
		// A room is never left half invited.
		result.Reports = append(result.Reports, c.reconcileRoom(context.WithoutCancel(ctx), room, options))
	}

	now := c.clock.Now()
	result.Duration = now.Sub(result.Started)
	c.metrics.passes.WithLabelValues(passMode, "completed").Inc()
	c.metrics.duration.WithLabelValues(passMode).Observe(result.Duration.Seconds())
	c.metrics.lastCompleted.Set(float64(now.Unix()))
	logger.Info("pass completed",
		"rooms", len(result.Reports),
		"failed", result.Count(reconcile.StatusFailed),
		"duration", result.Duration,
	)

	if c.notifier != nil {
		if err := c.notifier.NotifyPass(ctx, result); err != nil {
			logger.Warn("delivering pass report failed", "error", err)
		}
	}
	return result, nil
}

// reconcileRoom turns a panic or a missing report into a failed
// report so the pass continues.
func (c *Controller) reconcileRoom(ctx context.Context, room directory.Room, options reconcile.Options) (report *reconcile.Report) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("room reconciliation panicked",
				"room", room.Alias,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			report = &reconcile.Report{
				Alias:   room.Alias,
				RoomID:  room.RoomID,
				Options: options,
				Status:  reconcile.StatusFailed,
				Err:     fmt.Errorf("reconciling %s: panic: %v", room.Alias, recovered),
			}
		}
	}()

	report, err := c.reconciler.Reconcile(ctx, room, options)
	if report == nil {
		if err == nil {
			err = errors.New("no report")
		}
		report = &reconcile.Report{
			Alias:   room.Alias,
			Options: options,
			Status:  reconcile.StatusFailed,
			Err:     err,
		}
	}
	return report
}

// Rooms returns the directory listing.
func (c *Controller) Rooms(ctx context.Context) ([]directory.Room, error) {
	rooms, err := c.provider.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading directory listing: %w", err)
	}
	return rooms, nil
}

// ManagedRooms returns the listed rooms the agent can manage, with
// their room IDs resolved.
func (c *Controller) ManagedRooms(ctx context.Context) ([]directory.Room, error) {
	rooms, err := c.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	return c.reconciler.ListManagedRooms(ctx, rooms)
}

// managedRoom finds alias among the managed rooms.
func (c *Controller) managedRoom(ctx context.Context, alias ref.RoomAlias) (directory.Room, error) {
	managed, err := c.ManagedRooms(ctx)
	if err != nil {
		return directory.Room{}, err
	}
	room, ok := directory.Find(managed, alias.String())
	if !ok {
		return directory.Room{}, fmt.Errorf("%w: %s", ErrNotManaged, alias)
	}
	return room, nil
}

// Unmanage hands a managed room over to successor (zero for none) and
// leaves it. The room must be listed in the directory. Removing it
// from the listing afterwards is up to the directory's owner: while it
// stays listed, the next pass reports it as not manageable.
func (c *Controller) Unmanage(ctx context.Context, alias ref.RoomAlias, successor ref.UserID) error {
	if _, err := c.managedRoom(ctx, alias); err != nil {
		return err
	}
	if err := c.reconciler.Unmanage(ctx, alias, successor); err != nil {
		return err
	}
	c.logger.Info("room unmanaged", "room", alias, "successor", successor)
	return nil
}

// InviteExternal invites a user from another homeserver into a
// managed room with tier.
func (c *Controller) InviteExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID, tier schema.Tier) error {
	return c.reconciler.InviteExternal(ctx, alias, userID, tier)
}

// KickExternal kicks a user from another homeserver out of a room that
// is listed in the directory and managed.
func (c *Controller) KickExternal(ctx context.Context, alias ref.RoomAlias, userID ref.UserID) error {
	if _, err := c.managedRoom(ctx, alias); err != nil {
		return err
	}
	return c.reconciler.KickExternal(ctx, alias, userID)
}
