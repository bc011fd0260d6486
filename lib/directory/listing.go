// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
)

// Listing is the serialized form of a directory export. The same shape
// is read from listing files and from the configuration's inline rooms.
type Listing struct {
	Rooms []ListedRoom `yaml:"rooms" json:"rooms"`
}

// ListedRoom is one room in a listing.
type ListedRoom struct {
	Alias   string         `yaml:"alias" json:"alias"`
	Members []ListedMember `yaml:"members" json:"members"`
}

// ListedMember is one member entry. User is either a full user ID or a
// bare localpart on the home server. Tier defaults to standard.
// Disabled accounts are listed by some exports and are skipped.
type ListedMember struct {
	User     string      `yaml:"user" json:"user"`
	Tier     schema.Tier `yaml:"tier" json:"tier"`
	Disabled bool        `yaml:"disabled" json:"disabled"`
}

// Options controls how a listing is normalized into Rooms.
type Options struct {
	// HomeServer places bare localparts and decides which users the
	// rename map applies to. Required when any member is a bare
	// localpart.
	HomeServer ref.ServerName

	// RenamedUsers maps a directory username to the localpart of the
	// Matrix account that user actually has. It covers directory
	// renames where the Matrix account kept its old name.
	RenamedUsers map[string]string

	Logger *slog.Logger
}

// Build converts a listing into rooms. Missing required fields are
// collected into one *IncompleteError; malformed identifiers fail with
// a plain error naming the entry.
func Build(listing Listing, options Options) ([]Room, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var missing []string
	rooms := make([]Room, 0, len(listing.Rooms))
	for roomIndex, listed := range listing.Rooms {
		if listed.Alias == "" {
			missing = append(missing, fmt.Sprintf("rooms[%d].alias", roomIndex))
			continue
		}
		alias, err := ref.ParseRoomAlias(listed.Alias)
		if err != nil {
			return nil, fmt.Errorf("directory: rooms[%d]: %w", roomIndex, err)
		}

		room := Room{Alias: alias}
		positions := make(map[ref.UserID]int)
		for memberIndex, entry := range listed.Members {
			field := fmt.Sprintf("rooms[%d].members[%d]", roomIndex, memberIndex)
			if entry.User == "" {
				missing = append(missing, field+".user")
				continue
			}
			if entry.Disabled {
				logger.Debug("skipping disabled account", "room", alias, "user", entry.User)
				continue
			}
			userID, err := resolveUser(entry.User, options)
			if err != nil {
				if options.HomeServer.IsZero() && !strings.HasPrefix(entry.User, "@") {
					missing = append(missing, "server_name")
					continue
				}
				return nil, fmt.Errorf("directory: %s: %w", field, err)
			}

			if position, ok := positions[userID]; ok {
				existing := &room.Members[position]
				if entry.Tier > existing.Tier {
					existing.Tier = entry.Tier
				}
				logger.Warn("merged duplicate directory member",
					"room", alias, "user_id", userID, "tier", existing.Tier)
				continue
			}
			positions[userID] = len(room.Members)
			room.Members = append(room.Members, Member{UserID: userID, Tier: entry.Tier})
		}
		rooms = append(rooms, room)
	}

	if len(missing) > 0 {
		return nil, &IncompleteError{Missing: dedupe(missing)}
	}
	return rooms, nil
}

// resolveUser parses a member entry into a user ID and applies the
// rename map to home server users.
func resolveUser(raw string, options Options) (ref.UserID, error) {
	var userID ref.UserID
	var err error
	if strings.HasPrefix(raw, "@") {
		userID, err = ref.ParseUserID(raw)
	} else {
		if options.HomeServer.IsZero() {
			return ref.UserID{}, fmt.Errorf("bare localpart %q needs a home server", raw)
		}
		userID, err = ref.NewUserID(raw, options.HomeServer)
	}
	if err != nil {
		return ref.UserID{}, err
	}

	if userID.Server() != options.HomeServer {
		return userID, nil
	}
	renamed, ok := options.RenamedUsers[userID.Localpart()]
	if !ok || renamed == userID.Localpart() {
		return userID, nil
	}
	if options.Logger != nil {
		options.Logger.Debug("mapped renamed user", "from", userID.Localpart(), "to", renamed)
	}
	return userID.WithLocalpart(renamed)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := values[:0]
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		result = append(result, value)
	}
	return result
}
