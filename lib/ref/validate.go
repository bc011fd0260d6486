// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// validateServer checks that a Matrix server name is minimally valid:
// non-empty, no control characters or whitespace, no Matrix sigils.
// Ports ("localhost:8448") are allowed.
func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(server); i++ {
		c := server[i]
		if c <= ' ' || c == 0x7f || c == '@' || c == '#' || c == '!' || c == '/' {
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// validateLocalpart rejects localparts that cannot round-trip through
// the canonical form: empty, containing ':' (which would move the
// server boundary), or containing whitespace and control characters.
func validateLocalpart(localpart, kind string) error {
	if localpart == "" {
		return fmt.Errorf("%s has empty localpart", kind)
	}
	for i := 0; i < len(localpart); i++ {
		c := localpart[i]
		if c <= ' ' || c == 0x7f || c == ':' {
			return fmt.Errorf("%s localpart %q: invalid character %q at position %d", kind, localpart, c, i)
		}
	}
	return nil
}

// parsePrefixedID extracts localpart and server from a Matrix identifier
// with the given sigil prefix (@ for user IDs, # for room aliases). The
// localpart ends at the first ':'; everything after it is the server
// name, which may itself carry a port.
func parsePrefixedID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if identifier == "" {
		return "", "", fmt.Errorf("empty %s", kind)
	}
	if identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	colonIndex := strings.IndexByte(identifier[1:], ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	}
	localpart = identifier[1 : colonIndex+1]
	server = identifier[colonIndex+2:]
	if localpart == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	if server == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty server", kind, identifier)
	}
	if err := validateLocalpart(localpart, kind); err != nil {
		return "", "", err
	}
	if err := validateServer(server); err != nil {
		return "", "", fmt.Errorf("invalid %s %q: %w", kind, identifier, err)
	}
	return localpart, server, nil
}
