// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package connection

import "time"

func nowHHMMSS() string {
	return "[" + time.Now().Format("15:04:05") + "]"
}
