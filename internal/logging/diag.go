// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package logging

import (
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Diag is the operator-facing leveled logger (process start, bridge
// listening, child respawn, fatal errors). It is deliberately separate
// from Trail: Trail is the wire-level audit log a session replays, Diag
// is what someone tailing the process in a terminal sees.
var Diag = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
	Prefix:          "surfbroker",
})

func SetDebug(on bool) {
	if on {
		Diag.SetLevel(charmlog.DebugLevel)
	} else {
		Diag.SetLevel(charmlog.InfoLevel)
	}
}
