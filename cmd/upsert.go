// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scramsync/scramsync/pkg/kafka"
	"github.com/scramsync/scramsync/pkg/scram"
)

func initUpsert(log *zerolog.Logger) *cobra.Command {
	var (
		password     string
		passwordFile string
		mechanisms   []string
		iterations   int32
	)

	c := &cobra.Command{
		Use:   "upsert <username>",
		Short: "Provision SCRAM credentials for a user",
		Long: `Derive SCRAM verifiers from a password and write them to the cluster,
replacing any existing credentials for the configured mechanisms.

The password comes from --password, --password-file, or stdin when
neither is given, e.g.

	printf '%s' "$PASSWORD" | scramsync upsert alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			pass, err := readPassword(cmd.InOrStdin(), password, passwordFile)
			if err != nil {
				return err
			}

			var opts []kafka.SyncerOption
			if len(mechanisms) > 0 {
				ms, err := scram.ParseMechanisms(mechanisms)
				if err != nil {
					return err
				}
				opts = append(opts, kafka.WithMechanisms(ms...))
			}
			if iterations > 0 {
				opts = append(opts, kafka.WithIterations(iterations))
			}

			syncer, client, err := newSyncer(*log, opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := syncer.Upsert(cmd.Context(), kafka.Job{Username: args[0], Password: pass}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials for %s updated\n", args[0])
			return nil
		},
	}
	c.Flags().StringVar(&password, "password", "", "password to derive the credentials from")
	c.Flags().StringVar(&passwordFile, "password-file", "", "file containing the password; a trailing newline is stripped")
	c.Flags().StringSliceVar(&mechanisms, "mechanism", nil, "mechanism to provision (repeatable, defaults to KAFKA_SCRAM_MECHANISMS)")
	c.Flags().Int32Var(&iterations, "iterations", 0, "verifier iteration count (defaults to KAFKA_SCRAM_ITERATIONS)")
	c.MarkFlagsMutuallyExclusive("password", "password-file")
	return c
}

func readPassword(stdin io.Reader, flag, file string) ([]byte, error) {
	switch {
	case flag != "":
		return []byte(flag), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading password file: %w", err)
		}
		return bytes.TrimRight(b, "\r\n"), nil
	default:
		// Prompt without echo on a terminal, read the pipe otherwise.
		if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(os.Stderr, "Password: ")
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, fmt.Errorf("reading password: %w", err)
			}
			return b, nil
		}
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading password from stdin: %w", err)
		}
		return bytes.TrimRight(b, "\r\n"), nil
	}
}
