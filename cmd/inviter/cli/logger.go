// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the process logger. Format "text" and "json" pick
// a handler; "auto" (or empty) uses slog.TextHandler when stderr is a
// terminal and slog.JSONHandler when it is piped or redirected, which
// is how the controller runs under a service manager.
//
// Components receive the logger and scope it with With():
//
//	logger := cli.NewLogger(level, cfg.Logging.Format).With("command", "sync")
func NewLogger(level slog.Level, format string) *slog.Logger {
	return newLogger(os.Stderr, level, format, term.IsTerminal(int(os.Stderr.Fd())))
}

func newLogger(w io.Writer, level slog.Level, format string, terminal bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if format == "text" || ((format == "auto" || format == "") && terminal) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
