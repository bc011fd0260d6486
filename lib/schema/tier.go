// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tier is a member's desired permission level. The values are Matrix
// power levels and are a wire contract: they must match the scale
// clients use to render moderators and administrators.
type Tier int

const (
	// TierStandard is an ordinary member.
	TierStandard Tier = 0

	// TierModerator can kick and invite. It is also the minimum level
	// at which the controller considers a room manageable.
	TierModerator Tier = 50

	// TierAdmin is a room administrator. Administrators are never
	// kicked and never demoted by reconciliation.
	TierAdmin Tier = 100
)

// String returns the tier name for the three known tiers and the bare
// number for anything else.
func (t Tier) String() string {
	switch t {
	case TierStandard:
		return "standard"
	case TierModerator:
		return "moderator"
	case TierAdmin:
		return "admin"
	default:
		return strconv.Itoa(int(t))
	}
}

// Level returns the tier as a Matrix power level.
func (t Tier) Level() int { return int(t) }

// ParseTier accepts a tier name ("standard", "member", "moderator",
// "admin") or one of the numeric levels 0, 50, 100.
func ParseTier(raw string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "standard", "member", "user", "0":
		return TierStandard, nil
	case "moderator", "mod", "50":
		return TierModerator, nil
	case "admin", "administrator", "100":
		return TierAdmin, nil
	}
	return 0, fmt.Errorf("unknown permission tier %q (want standard, moderator, or admin)", raw)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(data []byte) error {
	parsed, err := ParseTier(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts both the quoted name and a bare number, so JSON
// listings can write "tier": "admin" or "tier": 100.
func (t *Tier) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	return t.UnmarshalText([]byte(raw))
}
