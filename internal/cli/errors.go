// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "errors"

// ErrReported is returned when a command failed and has already written
// the failure to the terminal. Callers exit non-zero without printing it.
var ErrReported = errors.New("error already reported")
