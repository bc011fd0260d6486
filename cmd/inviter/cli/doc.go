// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree, logger, and terminal styling
// shared by the inviter subcommands.
//
// A command is a *Command with a Run function or Subcommands. Flags
// are declared with a lazily-built *pflag.FlagSet; unknown commands and
// flags get an edit-distance suggestion. Command output goes to stdout,
// logs to stderr.
package cli
