// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/controller"
	"github.com/bureau-foundation/inviter/lib/clock"
	"github.com/bureau-foundation/inviter/lib/config"
	"github.com/bureau-foundation/inviter/lib/tracing"
	"github.com/bureau-foundation/inviter/messaging"
	"github.com/bureau-foundation/inviter/reconcile"
)

// configFlags are shared by every command that talks to the
// homeserver.
type configFlags struct {
	path string
}

func (f *configFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.path, "config", "c", "", "path to inviter.yaml (default: $INVITER_CONFIG)")
}

func (f *configFlags) load() (*config.Config, error) {
	if f.path == "" {
		return config.Load()
	}
	return config.LoadFile(f.path)
}

// runtime is the wired controller for one command invocation.
type runtime struct {
	config     *config.Config
	logger     *slog.Logger
	session    *messaging.DirectSession
	reconciler *reconcile.Reconciler
	controller *controller.Controller
	registry   *prometheus.Registry
	shutdown   tracing.ShutdownFunc
}

type runtimeOptions struct {
	command string

	// notify delivers pass reports to the administration room.
	notify bool
}

func newRuntime(ctx context.Context, flags *configFlags, options runtimeOptions) (*runtime, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	logger := cli.NewLogger(level, cfg.Logging.Format).With("command", options.command)

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	token, err := cfg.AccessToken()
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		HTTPClient:    &http.Client{Timeout: cfg.Homeserver.RequestTimeout},
		Logger:        logger,
	})
	if err != nil {
		token.Close()
		shutdown(ctx)
		return nil, err
	}
	session := client.SessionFromToken(cfg.Homeserver.UserID, token)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	permissions := cfg.Rooms.Permissions.PowerLevels()
	reconciler, err := reconcile.New(reconcile.Config{
		Session: session,
		Policy: reconcile.Policy{
			HomeServer:        cfg.ServerName,
			CreateRooms:       cfg.Sync.CreateRooms,
			EncryptOnCreate:   cfg.Rooms.EncryptOnCreate,
			HistoryVisibility: cfg.Rooms.HistoryVisibility,
			Permissions:       &permissions,
			ActionDelay:       cfg.Sync.ActionDelay,
		},
		Clock:   clock.Real(),
		Logger:  logger,
		Metrics: reconcile.NewMetrics(registry),
	})
	if err != nil {
		session.Close()
		shutdown(ctx)
		return nil, err
	}

	var notifier *controller.Notifier
	if options.notify && cfg.AdministrationRoom != "" {
		notifier = controller.NewNotifier(session, cfg.AdministrationRoom, logger)
	}
	passController, err := controller.New(controller.Config{
		Reconciler: reconciler,
		Provider:   cfg.DirectoryProvider(logger),
		Notifier:   notifier,
		Clock:      clock.Real(),
		Logger:     logger,
		Metrics:    controller.NewMetrics(registry),
	})
	if err != nil {
		session.Close()
		shutdown(ctx)
		return nil, err
	}

	return &runtime{
		config:     cfg,
		logger:     logger,
		session:    session,
		reconciler: reconciler,
		controller: passController,
		registry:   registry,
		shutdown:   shutdown,
	}, nil
}

// Close releases the session and flushes spans.
func (r *runtime) Close() {
	flushContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.shutdown(flushContext); err != nil {
		r.logger.Warn("flushing traces failed", "error", err)
	}
	if err := r.session.Close(); err != nil {
		r.logger.Warn("closing session failed", "error", err)
	}
}

// verifyAgent checks the access token belongs to the configured user.
func (r *runtime) verifyAgent(ctx context.Context) error {
	userID, err := r.session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("checking access token: %w", err)
	}
	if userID != r.config.Homeserver.UserID {
		return fmt.Errorf("access token belongs to %s, not the configured %s", userID, r.config.Homeserver.UserID)
	}
	return nil
}

// describeError turns the errors commands expect into operator
// guidance. Other errors are returned unchanged.
func describeError(err error) error {
	var incomplete *config.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		return fmt.Errorf("the configuration is incomplete:\n  %w", err)
	case errors.Is(err, reconcile.ErrSafetyViolation):
		return fmt.Errorf("%w\n\nThe room would be left without an administrator. Use "+
			"'inviter unmanage <alias> --successor <user>' to name a successor, "+
			"and make sure they have accepted the invite", err)
	case errors.Is(err, controller.ErrNotManaged), errors.Is(err, reconcile.ErrRoomNotManageable):
		return fmt.Errorf("%w\n\nThe room must be listed in the directory, joined by the "+
			"controller, and give it moderator power", err)
	case errors.Is(err, reconcile.ErrDirectoryUser):
		return fmt.Errorf("%w\n\nAdd or remove them in the directory instead", err)
	case errors.Is(err, reconcile.ErrNotKickable):
		return fmt.Errorf("%w\n\nAdministrators can only be removed by another administrator", err)
	}
	return err
}
