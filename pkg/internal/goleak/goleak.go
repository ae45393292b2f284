// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package goleak carries the leak-check options shared by the test suites
// that hold the engine to its no-goroutines-of-its-own claim.
package goleak

import (
	"go.uber.org/goleak"
)

var ignoreFuncs = []string{
	// The net poller outlives closed kgo clients and kfake brokers for a
	// moment; it belongs to the runtime, not to us.
	"internal/poll.runtime_pollWait",
}

var Defaults = initOpts()

func initOpts() []goleak.Option {
	options := make([]goleak.Option, 0, len(ignoreFuncs)+1)
	for _, ignoreFunc := range ignoreFuncs {
		options = append(options, goleak.IgnoreTopFunction(ignoreFunc))
	}
	options = append(options, goleak.IgnoreCurrent())
	return options
}
