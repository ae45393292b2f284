// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/twmb/franz-go/pkg/kerr"
)

// Failure classes for the sync path. Callers pick behaviour and log levels
// with errors.Is; message text is for humans only.
var (
	// ErrConfig marks invalid or missing client configuration. Fatal to
	// the sync path until an operator corrects the environment.
	ErrConfig = errors.New("kafka: invalid configuration")

	// ErrClosed is returned for any use of a client after Close.
	ErrClosed = errors.New("kafka: client closed")

	// ErrAuth marks a cluster-side rejection of the admin client's own
	// credentials. The session is torn down so the next job dials fresh.
	ErrAuth = errors.New("kafka: authentication rejected")

	// ErrTransient marks transport failures that may resolve on a later
	// attempt. The franz-go layer has already retried within its timeout
	// budget by the time this surfaces; jobs are not re-queued.
	ErrTransient = errors.New("kafka: transient cluster failure")

	// ErrEmptyUsername and ErrEmptyPassword reject a sync job at its
	// construction boundary, before any cluster call.
	ErrEmptyUsername = errors.New("kafka: empty username")
	ErrEmptyPassword = errors.New("kafka: empty password")

	// ErrDegradedIdentity refuses jobs whose username fell back to the
	// raw user ID. Registering opaque IDs as cluster principals is almost
	// never what an operator wants, so it is opt-in.
	ErrDegradedIdentity = errors.New("kafka: degraded identity refused")
)

// classify wraps err with the sentinel matching its failure class. Broker
// error codes come through kerr; anything net-shaped or deadline-shaped is
// transient.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kerr.SaslAuthenticationFailed),
		errors.Is(err, kerr.ClusterAuthorizationFailed),
		errors.Is(err, kerr.IllegalSaslState),
		errors.Is(err, kerr.UnsupportedSaslMechanism):
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case errors.Is(err, kerr.UnacceptableCredential):
		return fmt.Errorf("%w: %w", ErrConfig, err)
	case kerr.IsRetriable(err),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
