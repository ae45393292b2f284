// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the scramsync operator CLI. Every subcommand talks
// to the cluster through the same environment-driven configuration the
// embedded engine uses, so a successful `scramsync check` means the engine
// would come up with the same KAFKA_* variables.
package cmd

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scramsync/scramsync/pkg/kafka"
)

// Command assembles the root command and its subcommands.
func Command() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)
	log := zerolog.Nop()

	root := &cobra.Command{
		Use:   path.Base(os.Args[0]),
		Short: "Kafka SCRAM credential synchronisation",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			lvl, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			var w io.Writer
			switch logFormat {
			case "json":
				w = os.Stderr
			case "pretty":
				w = zerolog.ConsoleWriter{Out: os.Stderr}
			default:
				return fmt.Errorf("invalid log format %q", logFormat)
			}
			log = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "set log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "pretty", "set log format (pretty, json)")

	root.AddCommand(initCheck(&log))
	root.AddCommand(initDescribe(&log))
	root.AddCommand(initUpsert(&log))
	root.AddCommand(initDelete(&log))
	root.AddCommand(initVersion())
	return root
}

// newSyncer builds the client and syncer from the KAFKA_* environment. No
// connection is made until the first admin call.
func newSyncer(log zerolog.Logger, opts ...kafka.SyncerOption) (*kafka.Syncer, *kafka.Client, error) {
	cfg, err := kafka.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	client, err := kafka.NewClient(cfg, kafka.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return kafka.NewSyncer(client, log.With().Str("component", "syncer").Logger(), opts...), client, nil
}
