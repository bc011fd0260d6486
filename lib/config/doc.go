// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the inviter configuration.
//
// Configuration is loaded from a single YAML file named by the
// INVITER_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search.
//
// A small set of environment variables override file values so that
// secrets and deployment endpoints can be injected without editing the
// file: INVITER_ACCESS_TOKEN, INVITER_HOMESERVER_URL,
// INVITER_METRICS_LISTEN, INVITER_OTLP_ENDPOINT, and INVITER_LOG_LEVEL.
//
// [Config.Validate] checks every field once and reports all problems
// together as an [*IncompleteError] (errors.Is [ErrIncomplete]), so a
// misconfigured deployment fails at startup with the complete list.
package config
