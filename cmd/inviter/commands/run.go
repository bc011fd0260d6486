// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/controller"
	"github.com/bureau-foundation/inviter/lib/clock"
)

func runCommand() *cli.Command {
	var (
		flags         configFlags
		shutdownGrace time.Duration
	)
	command := &cli.Command{
		Name:    "run",
		Summary: "Run the controller: a pass every sync interval",
		Description: `Run the controller until SIGINT or SIGTERM.

A pass starts one sync interval after startup and after each previous
wake. Automatic passes invite listed users and, unless sync.cautious is
set, kick unlisted ones. Each pass's report is posted to the
administration room when one is configured. Prometheus metrics are
served on metrics.listen.

On shutdown, scheduling stops at once and running passes get
--shutdown-grace to finish.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.DurationVar(&shutdownGrace, "shutdown-grace", 5*time.Minute, "how long running passes may finish after a shutdown signal")
			return flagSet
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 0, 0); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "run", notify: true})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()
		if err := rt.verifyAgent(ctx); err != nil {
			return err
		}

		scheduler := controller.NewScheduler(controller.SchedulerConfig{
			Runner:   rt.controller,
			Interval: rt.config.Sync.Interval,
			Options:  controller.AutomaticOptions(rt.config.Sync.Cautious),
			Clock:    clock.Real(),
			Logger:   rt.logger,
		})

		group, groupContext := errgroup.WithContext(ctx)
		group.Go(func() error { return scheduler.Run(groupContext) })
		if listen := rt.config.Metrics.Listen; listen != "" {
			server := &http.Server{
				Addr:              listen,
				Handler:           metricsHandler(rt.registry),
				ReadHeaderTimeout: 10 * time.Second,
			}
			group.Go(func() error {
				rt.logger.Info("serving metrics", "listen", listen)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupContext.Done()
				shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownContext)
			})
		}
		rt.logger.Info("controller started",
			"user_id", rt.config.Homeserver.UserID,
			"interval", rt.config.Sync.Interval,
			"cautious", rt.config.Sync.Cautious,
		)
		runErr := group.Wait()

		finished := make(chan struct{})
		go func() {
			scheduler.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(shutdownGrace):
			rt.logger.Warn("passes still running at shutdown deadline", "grace", shutdownGrace)
		}
		rt.logger.Info("controller stopped")
		return runErr
	}
	return command
}

// metricsHandler serves registry on /metrics and a liveness probe on
// /healthz.
func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}
