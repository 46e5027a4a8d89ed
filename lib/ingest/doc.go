// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest is the single writer of a [retention.Store]. A [Loop]
// reads iotop output one line at a time, parses each line with
// [iostat.Parse], stamps it with the current Unix time, and appends it.
//
// A malformed line either stops the loop ([PolicyFatal], the default)
// or is logged and counted ([PolicySkip]). When the upstream line
// source closes, Run returns [ErrUpstreamClosed]: a daemon whose
// sampler has died should exit rather than keep serving a history that
// no longer grows.
package ingest
