// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"strings"
)

// Provider produces the desired state of every managed room. It is
// called once per reconciliation pass.
type Provider interface {
	// Rooms returns the current listing. A provider that lacks the
	// settings it needs returns an *IncompleteError.
	Rooms(ctx context.Context) ([]Room, error)
}

// ErrIncomplete is matched (errors.Is) by every *IncompleteError.
var ErrIncomplete = errors.New("directory configuration incomplete")

// IncompleteError names the settings a provider needs but does not
// have.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return ErrIncomplete.Error() + ": missing " + strings.Join(e.Missing, ", ")
}

// Is reports whether target is ErrIncomplete.
func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }
