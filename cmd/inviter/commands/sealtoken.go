// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/inviter/cmd/inviter/cli"
	"github.com/bureau-foundation/inviter/lib/sealed"
	"github.com/bureau-foundation/inviter/lib/secret"
)

func sealTokenCommand() *cli.Command {
	var recipients []string
	command := &cli.Command{
		Name:    "seal-token",
		Summary: "Encrypt an access token for homeserver.access_token_file",
		Usage:   "inviter seal-token --recipient <age1...> < token > token.age",
		Description: `Read an access token from stdin and write it, sealed with age to each
--recipient, to stdout. Point homeserver.access_token_file at the result
and homeserver.access_token_identity_file at the matching identity.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal-token", pflag.ContinueOnError)
			flagSet.StringArrayVarP(&recipients, "recipient", "r", nil, "age public key to seal to (repeatable)")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Seal to a key made with age-keygen", Command: "inviter seal-token -r age1... < token > /etc/inviter/token.age"},
		},
	}
	command.Run = func(args []string) error {
		if err := command.RequireArgs(args, 0, 0); err != nil {
			return err
		}
		return sealToken(os.Stdin, os.Stdout, recipients)
	}
	return command
}

func sealToken(r io.Reader, w io.Writer, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("--recipient is required")
	}
	for _, recipient := range recipients {
		if err := sealed.ParseRecipient(recipient); err != nil {
			return fmt.Errorf("--recipient %q: %w", recipient, err)
		}
	}
	plaintext, err := io.ReadAll(r)
	defer secret.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	if len(bytes.TrimSpace(plaintext)) == 0 {
		return fmt.Errorf("no token on stdin")
	}
	ciphertext, err := sealed.Seal(bytes.TrimSpace(plaintext), recipients)
	if err != nil {
		return err
	}
	_, err = w.Write(ciphertext)
	return err
}
