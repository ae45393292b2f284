// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package version implements helper functions for the stored version.
package version

// scramsync version (e.g. "1.2.0"), injected via LDFLAGS
var Version = "dev"
