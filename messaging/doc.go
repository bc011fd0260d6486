// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API the
// controller needs to reconcile rooms.
//
// [Client] holds the homeserver URL and HTTP transport. [DirectSession]
// adds an access token, kept in mmap-backed secret.Buffer memory, and
// exposes the room operations: alias resolution, room creation, the
// joined-rooms listing, member listing, state event reads and writes,
// invite, kick, leave, and message sending.
//
// All API errors are returned as [*MatrixError] wrapped with the
// operation that failed. [IsMatrixError] tests for a specific error
// code, [IsNotFound] for M_NOT_FOUND, and [IsTransient] classifies
// failures worth retrying on a later pass: rate limiting, 5xx
// responses, and transport errors.
//
// Request URLs are built by string concatenation rather than url.URL to
// avoid double-encoding path segments that contain escaped characters.
//
// [NewMarkdownMessage] renders Markdown to the HTML formatted_body that
// Matrix clients display, so reports read well in the administration
// room.
package messaging
