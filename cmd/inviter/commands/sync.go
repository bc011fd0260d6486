// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/controller"
	"github.com/bureau-foundation/inviter/reconcile"
)

func syncCommand() *cli.Command {
	var (
		flags  configFlags
		dry    bool
		notify bool
	)
	command := &cli.Command{
		Name:    "sync",
		Summary: "Run one reconciliation pass now",
		Description: `Run one full pass over every listed room and print a report per room.

A full pass invites and kicks regardless of sync.cautious. With --dry
nothing is changed: rooms are not created, nobody is invited or kicked,
and no state is written, but the report lists everything a full pass
would do. Exits 1 when any room failed.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&dry, "dry", false, "report what would change without changing anything")
			flagSet.BoolVar(&notify, "notify", false, "also post the report to the administration room")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Preview the next pass", Command: "inviter sync --dry"},
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 0, 0); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		rt, err := newRuntime(ctx, &flags, runtimeOptions{command: "sync", notify: notify})
		if err != nil {
			return describeError(err)
		}
		defer rt.Close()

		options := reconcile.FullSync
		if dry {
			options = reconcile.DryRun
		}
		result, err := rt.controller.RunPass(ctx, options)
		printPass(os.Stdout, result)
		if err != nil {
			return describeError(err)
		}
		if result.Count(reconcile.StatusFailed) > 0 {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}
	return command
}

// printPass writes one line per room and the pass summary.
func printPass(w io.Writer, result *controller.PassResult) {
	printer := cli.NewPrinter(w)
	for _, report := range result.Reports {
		printer.Line(statusTone(report), "%s", report.Summary())
		for _, failed := range report.Failed {
			printer.Item(failed.Action+" "+failed.UserID.String(), failed.Err.Error())
		}
		for _, warning := range report.Warnings {
			printer.Item("warning", warning)
		}
	}
	if len(result.Reports) > 0 {
		printer.Heading("%s", result.Summary())
	}
}

func statusTone(report *reconcile.Report) cli.Tone {
	switch report.Status {
	case reconcile.StatusReconciled:
		if len(report.Failed) > 0 || len(report.Warnings) > 0 {
			return cli.ToneWarn
		}
		return cli.ToneOK
	case reconcile.StatusFailed:
		return cli.ToneFail
	case reconcile.StatusWouldCreate:
		return cli.TonePlain
	default:
		return cli.ToneWarn
	}
}
