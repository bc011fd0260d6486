// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the inviter command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/lib/version"
)

// Root returns the complete command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "inviter",
		Description: `inviter: keeps Matrix room membership in line with a directory.

Every listed room is created if missing, listed users are invited and
given their power level, and unlisted users are removed. Administrators
are never demoted or removed, and the controller never leaves a room
without another administrator.`,
		Subcommands: []*cli.Command{
			runCommand(),
			syncCommand(),
			roomsCommand(),
			joinedCommand(),
			managedCommand(),
			unmanageCommand(),
			inviteMemberCommand(),
			inviteAdminCommand(),
			kickMemberCommand(),
			sealTokenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(os.Stdout, "inviter %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Preview what a pass would change", Command: "inviter sync --dry --config inviter.yaml"},
			{Description: "Run the controller", Command: "INVITER_CONFIG=/etc/inviter.yaml inviter run"},
		},
	}
}
