// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts secrets at rest with age. The
// controller's access token file may be sealed to an x25519 recipient
// so the token never sits in plaintext on disk; the identity that
// opens it lives in a separate file, typically on a tmpfs or in a
// credential store.
//
// [Seal] produces ASCII-armored ciphertext. [Unseal] accepts armored
// or binary ciphertext (what "age -e" and "age -a -e" write) and
// returns the plaintext in a [secret.Buffer].
package sealed
