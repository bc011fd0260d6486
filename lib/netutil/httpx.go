// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP response and network error helpers for
// the homeserver client.
//
// Response helpers (ReadResponse, DecodeResponse, ErrorBody) bound body
// reads at MaxResponseSize so a misbehaving homeserver cannot exhaust
// memory. IsNetworkError classifies transport failures that should be
// retried on the next reconciliation pass rather than treated as a
// verdict from the server.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response body reads. A large room's
// member list is the biggest response the controller reads; 64 MB is
// far beyond that.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an error response body for diagnostics. Read errors
// are ignored; a partial body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
