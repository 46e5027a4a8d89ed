// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity of iostream binaries.
//
// [Version], [GitCommit], and [BuildTime] may be injected with
// -ldflags -X. When GitCommit is not injected, the VCS revision that
// the Go toolchain embeds in the binary is used instead, so plain
// `go build` output still identifies its commit.
package version
