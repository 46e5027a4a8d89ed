// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoUsesInjectedValues(t *testing.T) {
	savedVersion, savedCommit, savedTime := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = savedVersion, savedCommit, savedTime })

	Version, GitCommit, BuildTime = "1.4.0", "abc1234", "2026-10-01T00:00:00Z"

	if got, want := Info(), "1.4.0 (abc1234, 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	var output bytes.Buffer
	Print(&output, "iostreamd")
	if got, want := output.String(), "iostreamd 1.4.0 (abc1234, 2026-10-01T00:00:00Z)\n"; got != want {
		t.Errorf("Print = %q, want %q", got, want)
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	full := Full()
	if !strings.Contains(full, "Go: ") || !strings.Contains(full, "Platform: ") {
		t.Errorf("Full() = %q, missing toolchain or platform", full)
	}
}
