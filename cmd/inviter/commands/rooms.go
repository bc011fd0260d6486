// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
)

func roomsCommand() *cli.Command {
	var flags configFlags
	command := &cli.Command{
		Name:    "rooms",
		Summary: "List the rooms and members in the directory",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rooms", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 0, 0); err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "rooms"})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		rooms, err := rt.controller.Rooms(ctx)
		if err != nil {
			return describeError(err)
		}
		printRooms(os.Stdout, "Rooms in the directory", rooms, true)
		return nil
	}
	return command
}

func managedCommand() *cli.Command {
	var flags configFlags
	command := &cli.Command{
		Name:    "managed",
		Summary: "List the directory rooms the controller can manage",
		Description: `List the directory rooms the controller can manage: it has joined them
and has at least moderator power.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("managed", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 0, 0); err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "managed"})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		rooms, err := rt.controller.ManagedRooms(ctx)
		if err != nil {
			return describeError(err)
		}
		printRooms(os.Stdout, "Managed rooms", rooms, false)
		return nil
	}
	return command
}

func joinedCommand() *cli.Command {
	var flags configFlags
	command := &cli.Command{
		Name:    "joined",
		Summary: "List every room the controller's account has joined",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("joined", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 0, 0); err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "joined"})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		roomIDs, err := rt.session.JoinedRooms(ctx)
		if err != nil {
			return err
		}
		printJoined(os.Stdout, roomIDs)
		return nil
	}
	return command
}

func printRooms(w io.Writer, heading string, rooms []directory.Room, withMembers bool) {
	printer := cli.NewPrinter(w)
	printer.Heading("%s (%d)", heading, len(rooms))
	for _, room := range rooms {
		detail := ""
		if !room.RoomID.IsZero() {
			detail = room.RoomID.String()
		}
		printer.Item(room.Alias.String(), detail)
		if !withMembers {
			continue
		}
		for _, member := range room.Members {
			printer.Item("  "+member.UserID.String(), member.Tier.String())
		}
	}
}

func printJoined(w io.Writer, roomIDs []ref.RoomID) {
	printer := cli.NewPrinter(w)
	printer.Heading("Joined rooms (%d)", len(roomIDs))
	for _, roomID := range roomIDs {
		printer.Item(roomID.String(), "")
	}
	if len(roomIDs) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
}
