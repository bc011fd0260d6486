// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory models the desired state of managed rooms and the
// providers that produce it.
//
// A directory listing names rooms by alias and lists each room's
// members with a permission [schema.Tier]. Listings are produced by an
// external export job (an LDAP or Graph connector) as YAML or JSONC,
// or inlined in the controller's configuration. [FileProvider] re-reads
// the listing on every call so each reconciliation pass sees the
// current directory; [StaticProvider] serves a fixed listing.
//
// Building a listing normalizes it: bare localparts are placed on the
// home server, renamed accounts are mapped to their Matrix localpart,
// disabled accounts are dropped, and a user listed twice in one room
// keeps the highest tier.
//
// Missing settings surface as one [*IncompleteError] (errors.Is
// [ErrIncomplete]) naming every absent field, so an operator sees the
// full list at once.
package directory
