// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/lib/ref"
)

func unmanageCommand() *cli.Command {
	var (
		flags     configFlags
		successor string
	)
	command := &cli.Command{
		Name:    "unmanage",
		Summary: "Hand a room over and leave it",
		Usage:   "inviter unmanage <room-alias> [--successor <user-id>]",
		Description: `Leave a managed room without leaving it unadministered.

The controller only leaves when another joined member is an
administrator. With --successor, that user is invited if needed and
made administrator first. A successor who has not joined yet makes the
first call fail: run the command again once they accept the invite.

The room should also be removed from the directory, or the next pass
will find it unmanageable and report it.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unmanage", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&successor, "successor", "", "user to make administrator before leaving")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Hand #team over to alice", Command: "inviter unmanage '#team:example.org' --successor @alice:example.org"},
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 1, 1); err != nil {
			return err
		}
		alias, err := ref.ParseRoomAlias(args[0])
		if err != nil {
			return err
		}
		var successorID ref.UserID
		if successor != "" {
			successorID, err = ref.ParseUserID(successor)
			if err != nil {
				return fmt.Errorf("--successor: %w", err)
			}
		}

		ctx := context.Background()
		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "unmanage"})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		if err := rt.controller.Unmanage(ctx, alias, successorID); err != nil {
			return describeError(err)
		}
		cli.NewPrinter(os.Stdout).Line(cli.ToneOK, "left %s", alias)
		return nil
	}
	return command
}
