// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
)

func inviteMemberCommand() *cli.Command {
	return inviteCommand("invite-member", "Invite a user from another server as a member", schema.TierStandard)
}

func inviteAdminCommand() *cli.Command {
	return inviteCommand("invite-admin", "Invite a user from another server as an administrator", schema.TierAdmin)
}

func inviteCommand(name, summary string, tier schema.Tier) *cli.Command {
	var flags configFlags
	command := &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "inviter " + name + " <room-alias> <user-id>",
		Description: summary + `.

The room must be managed. Users on the home server are refused: their
membership comes from the directory. Passes leave users from other
servers alone, and an administrator added this way can only be removed
by another administrator.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
	}
	command.Run = func(args []string) error {
		alias, userID, err := parseRoomAndUser(command, args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: name})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		if err := rt.controller.InviteExternal(ctx, alias, userID, tier); err != nil {
			return describeError(err)
		}
		cli.NewPrinter(os.Stdout).Line(cli.ToneOK, "invited %s to %s as %s", userID, alias, tier)
		return nil
	}
	return command
}

func kickMemberCommand() *cli.Command {
	var flags configFlags
	command := &cli.Command{
		Name:    "kick-member",
		Summary: "Kick a user from another server",
		Usage:   "inviter kick-member <room-alias> <user-id>",
		Description: `Kick a user from another server out of a managed room.

Administrators cannot be kicked, and users on the home server are
refused: remove them from the directory instead.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("kick-member", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
	}
	command.Run = func(args []string) error {
		alias, userID, err := parseRoomAndUser(command, args)
		if err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "kick-member"})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		if err := rt.controller.KickExternal(ctx, alias, userID); err != nil {
			return describeError(err)
		}
		cli.NewPrinter(os.Stdout).Line(cli.ToneOK, "kicked %s from %s", userID, alias)
		return nil
	}
	return command
}

// parseRoomAndUser reads the <room-alias> <user-id> positional pair.
func parseRoomAndUser(command *cli.Command, args []string) (ref.RoomAlias, ref.UserID, error) {
	if err := command.RequireArgs(args, 2, 2); err != nil {
		return ref.RoomAlias{}, ref.UserID{}, err
	}
	alias, err := ref.ParseRoomAlias(args[0])
	if err != nil {
		return ref.RoomAlias{}, ref.UserID{}, err
	}
	userID, err := ref.ParseUserID(args[1])
	if err != nil {
		return ref.RoomAlias{}, ref.UserID{}, err
	}
	return alias, userID, nil
}
