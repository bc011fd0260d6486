// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/inviter/lib/clock"
	"github.com/bureau-foundation/inviter/reconcile"
)

// DefaultInterval separates automatic passes.
const DefaultInterval = 30 * time.Minute

// PassRunner runs one pass. *Controller implements it.
type PassRunner interface {
	RunPass(ctx context.Context, options reconcile.Options) (*PassResult, error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Runner PassRunner

	// Interval between the start of one wait and the dispatch of the
	// next pass. Zero means DefaultInterval.
	Interval time.Duration

	// Options for automatic passes: invite always, kick unless
	// cautious.
	Options reconcile.Options

	Clock  clock.Clock
	Logger *slog.Logger
}

// Scheduler dispatches automatic passes. Passes are not serialized: a
// pass that outlasts the interval overlaps the next one, and a manual
// pass may overlap either.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	options  reconcile.Options
	clock    clock.Clock
	logger   *slog.Logger

	passes sync.WaitGroup
}

// NewScheduler fills defaults.
func NewScheduler(config SchedulerConfig) *Scheduler {
	scheduler := &Scheduler{
		runner:   config.Runner,
		interval: config.Interval,
		options:  config.Options,
		clock:    config.Clock,
		logger:   config.Logger,
	}
	if scheduler.interval <= 0 {
		scheduler.interval = DefaultInterval
	}
	if scheduler.clock == nil {
		scheduler.clock = clock.Real()
	}
	if scheduler.logger == nil {
		scheduler.logger = slog.Default()
	}
	return scheduler
}

// AutomaticOptions are the options of an automatic pass.
func AutomaticOptions(cautious bool) reconcile.Options {
	return reconcile.Options{AllowInvite: true, AllowKick: !cautious}
}

// Run sleeps one interval, dispatches a pass, and repeats until ctx is
// cancelled. The wake time is computed from the clock at the start of
// each sleep. Dispatched passes run detached from ctx, so cancellation
// stops scheduling but never interrupts a pass; use Wait to let them
// finish.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		wake := now.Add(s.interval)
		s.logger.Info("next pass scheduled", "at", wake, "in", wake.Sub(now))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.clock.After(wake.Sub(now)):
		}
		s.dispatch(ctx)
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	passContext := context.WithoutCancel(ctx)
	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		result, err := s.runner.RunPass(passContext, s.options)
		switch {
		case errors.Is(err, context.Canceled):
			s.logger.Warn("automatic pass cancelled")
		case err != nil:
			s.logger.Error("automatic pass failed", "error", err)
		default:
			s.logger.Info("automatic pass finished", "summary", result.Summary())
		}
	}()
}

// Wait blocks until every dispatched pass has returned.
func (s *Scheduler) Wait() {
	s.passes.Wait()
}
