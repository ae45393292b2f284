// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func initDescribe(log *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <username>",
		Short: "Show the SCRAM credentials a user has on the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			syncer, client, err := newSyncer(*log)
			if err != nil {
				return err
			}
			defer client.Close()

			infos, err := syncer.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintf(out, "%s has no SCRAM credentials\n", args[0])
				return nil
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%s  iterations=%d\n", info.Mechanism, info.Iterations)
			}
			return nil
		},
	}
}
