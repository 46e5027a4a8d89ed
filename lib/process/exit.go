// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry a specific process
// exit status.
type ExitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr as "<program>: error: <err>" and exits.
// The exit status is taken from an ExitCoder in err's chain, and is 1
// otherwise.
func Fatal(program string, err error) {
	os.Exit(report(os.Stderr, program, err))
}

// report writes the diagnostic and returns the exit status Fatal
// would use.
func report(w io.Writer, program string, err error) int {
	fmt.Fprintf(w, "%s: error: %v\n", program, err)
	var coder ExitCoder
	if errors.As(err, &coder) && coder.ExitCode() != 0 {
		return coder.ExitCode()
	}
	return 1
}
