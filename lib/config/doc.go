// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds iostreamd's settings: where to listen, which
// iotop to run, how long to retain samples, and how to react to
// malformed upstream lines.
//
// Settings come from three layers, each overriding the previous:
//
//  1. [Default] values, which match the historical daemon
//     (0.0.0.0:9093, "iotop" from PATH, 900 second window).
//  2. An optional file named by --config or IOSTREAM_CONFIG. Files
//     ending in .json or .jsonc are read as JSON with comments and
//     trailing commas allowed; anything else is read as YAML. Unknown
//     keys are rejected so that a typo cannot silently fall back to a
//     default.
//  3. Command-line flags the operator set explicitly.
//
// [Config.Validate] reports every problem at once.
package config
