// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/scramsync/scramsync/internal/version"
)

func initVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of scramsync",
		Long:  "Show version and build information for scramsync.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true
			return generateCmdOutput(os.Stdout)
		},
	}
}

func generateCmdOutput(out io.Writer) error {
	fmt.Fprintln(out, "Version: "+version.Version)
	fmt.Fprintln(out, "Go Version: "+runtime.Version())
	fmt.Fprintln(out, "Platform: "+runtime.GOOS+"/"+runtime.GOARCH)
	return nil
}
