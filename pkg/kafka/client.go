// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"github.com/twmb/franz-go/plugin/kzerolog"

	"github.com/scramsync/scramsync/internal/version"
)

// Client owns the admin session against the cluster: one lazily dialed
// franz-go client shared by all sync jobs. States run one way, uninitialised
// to ready to closed, except that a failed initialisation stays
// uninitialised so the next call re-attempts.
type Client struct {
	cfg        Config
	log        zerolog.Logger
	registerer prometheus.Registerer

	mu     sync.Mutex
	kc     *kgo.Client
	adm    *kadm.Client
	closed bool
}

// ClientOption tweaks client construction.
type ClientOption func(*Client)

// WithLogger routes client and broker-protocol logs through log.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithMetrics registers franz-go client metrics with the host's Prometheus
// registerer. The engine exposes no metrics endpoint of its own; scraping is
// the host's business.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Client) { c.registerer = reg }
}

// NewClient validates cfg and prepares a client. No connection is made until
// the first Admin call.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config { return c.cfg }

// Admin returns the shared admin client, dialing the cluster on first use.
// Initialisation is serialised; concurrent callers block until the dial
// settles. After Close, Admin fails with ErrClosed.
func (c *Client) Admin(ctx context.Context) (*kadm.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.adm != nil {
		return c.adm, nil
	}

	kc, err := c.dial(ctx)
	if err != nil {
		c.log.Error().Err(err).Object("config", c.cfg).Msg("kafka admin client initialisation failed")
		return nil, err
	}
	c.kc = kc
	c.adm = kadm.NewClient(kc)
	c.adm.SetTimeoutMillis(int32(c.cfg.RequestTimeoutMS))
	c.log.Info().Object("config", c.cfg).Msg("kafka admin client ready")
	return c.adm, nil
}

func (c *Client) dial(ctx context.Context) (*kgo.Client, error) {
	kgoLog := c.log.With().Str("component", "kgo").Logger()
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.cfg.BootstrapServers...),
		kgo.ClientID(c.cfg.ClientID),
		kgo.SoftwareNameAndVersion("scramsync", version.Version),
		kgo.WithLogger(kzerolog.New(&kgoLog)),
		kgo.DialTimeout(c.cfg.RequestTimeout()),
		kgo.RetryTimeout(c.cfg.DefaultAPITimeout()),
	}

	tc, err := c.cfg.tlsConfig()
	if err != nil {
		return nil, err
	}
	if tc != nil {
		opts = append(opts, kgo.DialTLSConfig(tc))
	}
	if c.cfg.saslEnabled() {
		mech, err := c.cfg.saslMechanism()
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mech))
	}
	if c.registerer != nil {
		opts = append(opts, kgo.WithHooks(kprom.NewMetrics("scramsync", kprom.Registerer(c.registerer))))
	}

	kc, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	// Fail initialisation here rather than on the first job, so config and
	// credential problems surface with a dial error, not a job error.
	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()
	if err := kc.Ping(pingCtx); err != nil {
		kc.Close()
		return nil, classify(fmt.Errorf("pinging cluster: %w", err))
	}
	return kc, nil
}

// Reset tears down the session so the next Admin call dials fresh. The
// syncer calls this after authentication rejections.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kc != nil {
		c.kc.Close()
		c.kc, c.adm = nil, nil
	}
}

// Close shuts the session down for good. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.kc != nil {
		c.kc.Close()
		c.kc, c.adm = nil, nil
	}
}
