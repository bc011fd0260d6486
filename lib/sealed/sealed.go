// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/inviter/lib/secret"
)

// Seal encrypts plaintext to one or more age x25519 recipients (age1...
// public keys) and returns armored ciphertext.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	armored := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Unseal decrypts ciphertext with the identities in identityFile, the
// contents of an age identity file (AGE-SECRET-KEY-1... lines, # comments
// allowed). Surrounding whitespace is trimmed from the plaintext. The
// identity buffer is borrowed, not closed. The caller must Close the
// returned buffer.
func Unseal(ciphertext []byte, identityFile *secret.Buffer) (*secret.Buffer, error) {
	identities, err := age.ParseIdentities(bytes.NewReader(identityFile.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}

	var source io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte(armor.Header)) {
		source = armor.NewReader(bufio.NewReader(bytes.NewReader(bytes.TrimSpace(ciphertext))))
	}
	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	defer secret.Zero(plaintext)

	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("sealed secret is empty")
	}
	return secret.NewFromBytes(trimmed)
}

// ParseRecipient validates an age x25519 public key.
func ParseRecipient(key string) error {
	if _, err := age.ParseX25519Recipient(key); err != nil {
		return fmt.Errorf("invalid age recipient: %w", err)
	}
	return nil
}
