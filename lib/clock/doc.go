// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// The scheduler computes its wake time from Clock.Now and sleeps on
// Clock.After; the reconcile pacer spaces membership actions with the
// same clock. Tests inject a FakeClock and step it with Advance:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go scheduler.Run(ctx)
//	c.WaitForTimers(1)         // wait for the scheduler to start sleeping
//	c.Advance(30 * time.Minute) // wake it deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing the clock.
package clock
