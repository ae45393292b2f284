// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/scramsync/scramsync/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Command().ExecuteContext(ctx)

	// run all deferred teardown before os.Exit
	stop()
	if err != nil {
		os.Exit(1)
	}
}
