// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

// Exit statuses.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// ExitCode maps an error returned from run() to a process exit status.
// Opting out is a clean exit; configuration problems exit with
// ExitConfig so supervisors can tell them from runtime failures.
func ExitCode(err error) int {
	switch {
	case err == nil, agenterr.Is(err, agenterr.OptOut):
		return ExitOK
	case agenterr.Is(err, agenterr.IdentificationNotDefined),
		agenterr.Is(err, agenterr.TLSReadingCertsInvalidMode):
		return ExitConfig
	default:
		return ExitFailed
	}
}

// Fatal writes "error: err" to stderr and exits with ExitCode(err).
// Use it in main() for errors from run() where the structured logger
// may not be initialized.
func Fatal(err error) {
	code := ExitCode(err)
	if code != ExitOK {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(code)
}
