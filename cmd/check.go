// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func initCheck(log *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify cluster connectivity and SCRAM admin access",
		Long: `Dial the cluster with the KAFKA_* environment configuration, request
broker metadata and list SCRAM users. A clean exit means the embedded
engine would come up with the same environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			_, client, err := newSyncer(*log)
			if err != nil {
				return err
			}
			defer client.Close()

			adm, err := client.Admin(cmd.Context())
			if err != nil {
				return err
			}
			meta, err := adm.BrokerMetadata(cmd.Context())
			if err != nil {
				return fmt.Errorf("requesting broker metadata: %w", err)
			}
			scrams, err := adm.DescribeUserSCRAMs(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing SCRAM users: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Cluster:", meta.Cluster)
			fmt.Fprintln(out, "Brokers:", len(meta.Brokers))
			fmt.Fprintln(out, "SCRAM users:", len(scrams))
			return nil
		},
	}
}
