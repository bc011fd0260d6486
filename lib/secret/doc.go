// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the homeserver access token in memory that is
// locked against swapping and excluded from core dumps.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it with mlock, and marks it MADV_DONTDUMP. Close zeroes and
// unmaps it. [ReadFromPath] loads a token file straight into a Buffer;
// [NewFromString] wraps a token that arrived through the environment.
//
// Depends on golang.org/x/sys/unix.
package secret
