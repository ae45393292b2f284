// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"

	"github.com/scramsync/scramsync/pkg/scram"
)

// Job is one credential synchronisation unit. Jobs are ephemeral: nothing
// queues or persists them, and the syncer wipes the cleartext before the
// call returns.
type Job struct {
	RealmID  string
	UserID   string
	Username string

	// Password is the cleartext. Submission transfers ownership to the
	// syncer.
	Password []byte

	// Mechanisms overrides the syncer's configured set when non-empty.
	Mechanisms []scram.Mechanism

	// Degraded marks a username that fell back to the raw user ID.
	Degraded bool
}

// scramAdmin is the slice of the kadm client the syncer uses; tests plug in
// an in-memory stand-in.
type scramAdmin interface {
	AlterUserSCRAMs(ctx context.Context, del []kadm.DeleteSCRAM, upsert []kadm.UpsertSCRAM) (kadm.AlteredUserSCRAMs, error)
	DescribeUserSCRAMs(ctx context.Context, users ...string) (kadm.DescribedUserSCRAMs, error)
}

// Syncer executes credential jobs against the cluster through the shared
// admin session. It adds no retry loop of its own: franz-go retries
// retriable failures within the configured timeouts, and a failed job is
// simply a failed job.
type Syncer struct {
	log           zerolog.Logger
	admin         func(context.Context) (scramAdmin, error)
	reset         func()
	mechanisms    []scram.Mechanism
	iterations    int32
	apiTimeout    time.Duration
	saslprep      bool
	allowDegraded bool
}

// SyncerOption tweaks syncer behaviour beyond the client configuration.
type SyncerOption func(*Syncer)

// WithSASLprep normalises passwords (RFC 4013) before derivation, for
// interoperability with clients that prepare theirs. Kafka's own tooling
// does not, hence opt-in.
func WithSASLprep() SyncerOption {
	return func(s *Syncer) { s.saslprep = true }
}

// WithDegradedJobs lets jobs whose username fell back to the raw user ID
// proceed instead of being refused.
func WithDegradedJobs() SyncerOption {
	return func(s *Syncer) { s.allowDegraded = true }
}

// WithMechanisms overrides the mechanism set provisioned per job.
func WithMechanisms(ms ...scram.Mechanism) SyncerOption {
	return func(s *Syncer) { s.mechanisms = ms }
}

// WithIterations overrides the verifier work factor.
func WithIterations(n int32) SyncerOption {
	return func(s *Syncer) { s.iterations = n }
}

// NewSyncer builds a syncer on top of the shared client session, taking the
// mechanism set, iteration count and timeout budget from its configuration.
func NewSyncer(client *Client, log zerolog.Logger, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		log:        log,
		admin:      func(ctx context.Context) (scramAdmin, error) { return client.Admin(ctx) },
		reset:      client.Reset,
		mechanisms: client.cfg.Mechanisms(),
		iterations: int32(client.cfg.ScramIterations),
		apiTimeout: client.cfg.DefaultAPITimeout(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upsert materialises the job's password as SCRAM credentials for every
// mechanism in its set, in one batched cluster call. It blocks until the
// cluster acknowledges or the failure is classified, and emits exactly one
// structured log record either way.
func (s *Syncer) Upsert(ctx context.Context, job Job) (err error) {
	start := time.Now()
	mechs := job.Mechanisms
	if len(mechs) == 0 {
		mechs = s.mechanisms
	}
	defer wipeBytes(job.Password)
	defer func() { s.observe("upsert", job, mechs, start, err) }()

	if job.Username == "" {
		return ErrEmptyUsername
	}
	if len(job.Password) == 0 {
		return ErrEmptyPassword
	}
	if job.Degraded && !s.allowDegraded {
		return fmt.Errorf("%w: user %s", ErrDegradedIdentity, job.UserID)
	}

	password := job.Password
	if s.saslprep {
		normalized, err := scram.Normalize(password)
		if err != nil {
			return fmt.Errorf("normalising password for %q: %w", job.Username, err)
		}
		defer wipeBytes(normalized)
		password = normalized
	}

	upserts := make([]kadm.UpsertSCRAM, 0, len(mechs))
	for _, m := range mechs {
		v, err := scram.Generate(password, m, s.iterations)
		if err != nil {
			return err
		}
		upserts = append(upserts, kadm.UpsertSCRAM{
			User:           job.Username,
			Mechanism:      kadmMechanism(m),
			Iterations:     v.Iterations,
			Salt:           v.Salt,
			SaltedPassword: v.SaltedPassword,
		})
	}

	adm, err := s.admin(ctx)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.apiTimeout)
	defer cancel()
	altered, err := adm.AlterUserSCRAMs(callCtx, nil, upserts)
	if err != nil {
		return s.fail(classify(err))
	}
	res, ok := altered[job.Username]
	if !ok {
		return fmt.Errorf("kafka: cluster response missing user %q", job.Username)
	}
	if res.Err != nil {
		return s.fail(classify(res.Err))
	}
	return nil
}

// Delete removes the user's SCRAM credentials for the configured mechanism
// set. Credentials that are already gone count as deleted.
func (s *Syncer) Delete(ctx context.Context, username string) (err error) {
	start := time.Now()
	job := Job{Username: username}
	defer func() { s.observe("delete", job, s.mechanisms, start, err) }()

	if username == "" {
		return ErrEmptyUsername
	}
	dels := make([]kadm.DeleteSCRAM, 0, len(s.mechanisms))
	for _, m := range s.mechanisms {
		dels = append(dels, kadm.DeleteSCRAM{User: username, Mechanism: kadmMechanism(m)})
	}

	adm, err := s.admin(ctx)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.apiTimeout)
	defer cancel()
	altered, err := adm.AlterUserSCRAMs(callCtx, dels, nil)
	if err != nil {
		return s.fail(classify(err))
	}
	if res, ok := altered[username]; ok && res.Err != nil && !errors.Is(res.Err, kerr.ResourceNotFound) {
		return s.fail(classify(res.Err))
	}
	return nil
}

// Describe lists the SCRAM credentials the cluster holds for username. A
// user without credentials yields an empty list.
func (s *Syncer) Describe(ctx context.Context, username string) ([]kadm.CredInfo, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}
	adm, err := s.admin(ctx)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.apiTimeout)
	defer cancel()
	described, err := adm.DescribeUserSCRAMs(callCtx, username)
	if err != nil {
		return nil, s.fail(classify(err))
	}
	d, ok := described[username]
	if !ok {
		return nil, fmt.Errorf("kafka: cluster response missing user %q", username)
	}
	if d.Err != nil {
		if errors.Is(d.Err, kerr.ResourceNotFound) {
			return nil, nil
		}
		return nil, s.fail(classify(d.Err))
	}
	return d.CredInfos, nil
}

// fail tears the session down on authentication rejections so the next job
// re-initialises, and passes the error through.
func (s *Syncer) fail(err error) error {
	if errors.Is(err, ErrAuth) && s.reset != nil {
		s.reset()
	}
	return err
}

// observe emits the one structured record per cluster call, stamped with a
// unique sync ID so a single job can be referenced across logs and tickets.
// Transient failures warn, everything else fails loudly; cleartext, salts and
// keys never appear here.
func (s *Syncer) observe(op string, job Job, mechs []scram.Mechanism, start time.Time, err error) {
	names := make([]string, len(mechs))
	for i, m := range mechs {
		names[i] = m.String()
	}
	ev := s.log.Info()
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errors.Is(err, ErrTransient) {
			ev = s.log.Warn()
		} else {
			ev = s.log.Error()
		}
		ev = ev.Err(err)
	}
	if job.RealmID != "" {
		ev = ev.Str("realm_id", job.RealmID)
	}
	if job.UserID != "" {
		ev = ev.Str("user_id", job.UserID)
	}
	ev.Str("sync_id", uuid.NewString()).
		Str("op", op).
		Str("username", job.Username).
		Strs("mechanisms", names).
		Str("outcome", outcome).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("scram credential sync")
}

func kadmMechanism(m scram.Mechanism) kadm.ScramMechanism {
	if m == scram.SHA512 {
		return kadm.ScramSha512
	}
	return kadm.ScramSha256
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
