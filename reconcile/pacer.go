// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/inviter/lib/clock"
)

// pacer spaces membership actions in one room. Homeservers rate-limit
// invites and kicks per room, and a rejected action leaves the room
// half-reconciled until the next pass, so every action waits for the
// limiter rather than retrying.
type pacer struct {
	clock    clock.Clock
	interval time.Duration
	limiter  *rate.Limiter
}

func newPacer(c clock.Clock, interval time.Duration) *pacer {
	return &pacer{
		clock:    c,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next action may run. The first action in a
// room runs immediately.
func (p *pacer) Wait(ctx context.Context) error {
	now := p.clock.Now()
	reservation := p.limiter.ReserveN(now, 1)
	// rate.Limit is a float, so the computed delay can be off by a few
	// nanoseconds in either direction.
	delay := reservation.DelayFrom(now).Round(time.Microsecond)
	if err := clock.SleepContext(ctx, p.clock, delay); err != nil {
		reservation.CancelAt(p.clock.Now())
		return err
	}
	return nil
}

// Hold sleeps one full interval and then counts as an action, so the
// next Wait is a full interval later.
func (p *pacer) Hold(ctx context.Context) error {
	if err := clock.SleepContext(ctx, p.clock, p.interval); err != nil {
		return err
	}
	p.limiter.ReserveN(p.clock.Now(), 1)
	return nil
}
