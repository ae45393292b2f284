// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine assembles the credential synchronisation pipeline: the
// correlation store shared by the hash interceptor and the event observer,
// the lazily dialed Kafka admin session, and the syncer driving it. A host
// embeds one Engine for its lifetime and registers the two provider
// factories it exposes.
package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/scramsync/scramsync/pkg/correlation"
	"github.com/scramsync/scramsync/pkg/hasher"
	"github.com/scramsync/scramsync/pkg/host"
	"github.com/scramsync/scramsync/pkg/kafka"
	"github.com/scramsync/scramsync/pkg/listener"
)

// Config carries the host-facing knobs. The Kafka surface is separate
// because operators feed it through the environment; the rest is set by the
// embedding host in code.
type Config struct {
	// Kafka is the admin-client configuration, usually kafka.FromEnv().
	Kafka kafka.Config

	// CorrelationMaxAge bounds the hash-to-event hand-off window. Zero
	// selects the store default.
	CorrelationMaxAge time.Duration

	// AllowDegraded lets jobs through whose username fell back to the raw
	// user ID. Off by default: provisioning a principal named by a UUID is
	// rarely what an operator wants.
	AllowDegraded bool

	// SASLprep normalises passwords per RFC 4013 before verifier
	// derivation. Off by default to match Kafka's own tooling.
	SASLprep bool
}

// Engine is the composition root. It owns the process-wide pieces and hands
// out per-session providers through the two factories.
type Engine struct {
	cfg        Config
	log        zerolog.Logger
	registerer prometheus.Registerer

	store    *correlation.Store
	client   *kafka.Client
	syncer   *kafka.Syncer
	hashers  *hasher.Factory
	watchers *listener.Factory
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithLogger routes all engine logging through log. Without it the engine
// stays silent.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics registers the Kafka client's metrics with the host's
// Prometheus registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// New validates cfg and assembles the pipeline. No connection is made; the
// first synchronised event dials the cluster.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(e)
	}

	clientOpts := []kafka.ClientOption{kafka.WithLogger(e.log)}
	if e.registerer != nil {
		clientOpts = append(clientOpts, kafka.WithMetrics(e.registerer))
	}
	client, err := kafka.NewClient(cfg.Kafka, clientOpts...)
	if err != nil {
		return nil, err
	}
	e.client = client

	e.store = correlation.NewStore(cfg.CorrelationMaxAge)

	var syncerOpts []kafka.SyncerOption
	if cfg.AllowDegraded {
		syncerOpts = append(syncerOpts, kafka.WithDegradedJobs())
	}
	if cfg.SASLprep {
		syncerOpts = append(syncerOpts, kafka.WithSASLprep())
	}
	e.syncer = kafka.NewSyncer(client, e.log.With().Str("component", "syncer").Logger(), syncerOpts...)

	e.hashers = hasher.NewFactory(e.store, e.log)
	e.watchers = listener.NewFactory(e.store, e.syncer, e.log)
	return e, nil
}

// FromEnv builds an engine whose Kafka surface comes from the KAFKA_*
// environment, with all host knobs at their defaults.
func FromEnv(opts ...Option) (*Engine, error) {
	kcfg, err := kafka.FromEnv()
	if err != nil {
		return nil, err
	}
	return New(Config{Kafka: kcfg}, opts...)
}

// Register announces both provider factories on the registry the host
// consults.
func (e *Engine) Register(r *host.Registry) {
	r.RegisterHasher(e.hashers)
	r.RegisterListener(e.watchers)
}

// HasherFactory returns the password-hash provider factory.
func (e *Engine) HasherFactory() host.HasherFactory { return e.hashers }

// ListenerFactory returns the event listener factory.
func (e *Engine) ListenerFactory() host.ListenerFactory { return e.watchers }

// Syncer exposes the shared sync executor for hosts and tooling that drive
// it directly.
func (e *Engine) Syncer() *kafka.Syncer { return e.syncer }

// Store exposes the correlation store, chiefly so hosts can monitor it.
func (e *Engine) Store() *correlation.Store { return e.store }

// SessionClosed is the session-teardown hook: it wipes any cleartext the
// session deposited but never consumed.
func (e *Engine) SessionClosed(s host.Session) {
	if s != nil {
		e.store.Clear(s.ID())
	}
}

// Close shuts the Kafka session down. Idempotent; the engine refuses work
// afterwards.
func (e *Engine) Close() {
	e.client.Close()
}
