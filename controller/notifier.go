// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/messaging"
)

// Poster sends messages to rooms named by ID or alias.
// *messaging.DirectSession implements it.
type Poster interface {
	messaging.AliasResolver
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
}

// Notifier posts reports to the administration room as Markdown
// notices.
type Notifier struct {
	poster Poster
	room   string
	logger *slog.Logger
}

// NewNotifier posts to room, a room ID or alias. The alias is resolved
// on every post so a re-pointed alias takes effect without a restart.
func NewNotifier(poster Poster, room string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{poster: poster, room: room, logger: logger}
}

// NotifyPass posts the noteworthy rooms of result. A pass that changed
// nothing posts nothing.
func (n *Notifier) NotifyPass(ctx context.Context, result *PassResult) error {
	markdown := result.Markdown()
	if markdown == "" {
		n.logger.Debug("pass changed nothing, no report posted")
		return nil
	}
	return n.Post(ctx, markdown)
}

// Post sends markdown to the administration room.
func (n *Notifier) Post(ctx context.Context, markdown string) error {
	roomID, err := messaging.ResolveRoom(ctx, n.poster, n.room)
	if err != nil {
		return fmt.Errorf("resolving administration room %s: %w", n.room, err)
	}
	eventID, err := n.poster.SendMessage(ctx, roomID, messaging.NewMarkdownMessage(markdown))
	if err != nil {
		return fmt.Errorf("posting to administration room %s: %w", n.room, err)
	}
	n.logger.Debug("report posted", "room_id", roomID, "event_id", eventID)
	return nil
}
