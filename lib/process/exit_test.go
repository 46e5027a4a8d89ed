// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("status %d", e.code) }
func (e statusError) ExitCode() int { return e.code }

func TestReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantOutput string
	}{
		{
			name:       "plain error",
			err:        errors.New("listening on :9093: address in use"),
			wantCode:   1,
			wantOutput: "iostreamd: error: listening on :9093: address in use\n",
		},
		{
			name:       "wrapped exit coder",
			err:        fmt.Errorf("upstream: %w", statusError{code: 3}),
			wantCode:   3,
			wantOutput: "iostreamd: error: upstream: status 3\n",
		},
		{
			name:       "zero exit code still fails",
			err:        statusError{code: 0},
			wantCode:   1,
			wantOutput: "iostreamd: error: status 0\n",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var output bytes.Buffer
			if code := report(&output, "iostreamd", test.err); code != test.wantCode {
				t.Errorf("exit code = %d, want %d", code, test.wantCode)
			}
			if output.String() != test.wantOutput {
				t.Errorf("output = %q, want %q", output.String(), test.wantOutput)
			}
		})
	}
}
