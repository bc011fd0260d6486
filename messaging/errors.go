// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/inviter/lib/netutil"
)

// MatrixError represents a structured error response from the Matrix
// homeserver. Callers can use errors.As to extract it:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeNotFound { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// RetryAfterMs is set on M_LIMIT_EXCEEDED responses.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeRoomInUse     = "M_ROOM_IN_USE"
)

// IsMatrixError checks whether err is a *MatrixError with the given
// error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is M_NOT_FOUND, as returned for an
// unknown alias or an absent state event.
func IsNotFound(err error) bool {
	return IsMatrixError(err, ErrCodeNotFound)
}

// IsTransient reports whether err is a failure that may succeed if
// retried later: rate limiting, a 5xx or 429 response, a request
// timeout, or a transport error. Permission and validation errors are
// not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == ErrCodeLimitExceeded ||
			matrixErr.StatusCode == http.StatusTooManyRequests ||
			matrixErr.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return netutil.IsNetworkError(err)
}
