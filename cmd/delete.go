// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func initDelete(log *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Remove a user's SCRAM credentials from the cluster",
		Long: `Delete the user's SCRAM credentials for the configured mechanisms.
Credentials that do not exist count as deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			syncer, client, err := newSyncer(*log)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := syncer.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials for %s removed\n", args[0])
			return nil
		},
	}
}
