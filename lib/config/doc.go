// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the agent.
//
// Configuration is loaded from a single file specified by either the
// INSIGHTS_AGENT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// reports are validated against the schema before delivery and debug
// logging is turned off.
//
// Variable expansion is performed on path and credential fields after
// loading: ${HOME}, ${AGENT_ROOT}, and ${VAR:-default} patterns are
// expanded, so a token can be kept in the process environment rather
// than in the file. No other environment variables override config
// values.
//
// Key exports:
//
//   - [Config] -- master struct
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- startup checks, reported together
//
// The agent core only reads configuration; nothing writes it back.
package config
