// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"

	"github.com/scramsync/scramsync/pkg/host"
	"github.com/scramsync/scramsync/pkg/kafka"
)

func fakeCluster(t *testing.T) *kfake.Cluster {
	t.Helper()
	fake, err := kfake.NewCluster(kfake.NumBrokers(1))
	require.NoError(t, err)
	t.Cleanup(fake.Close)
	return fake
}

func testConfig(addrs ...string) Config {
	return Config{Kafka: kafka.Config{
		BootstrapServers:    addrs,
		SecurityProtocol:    kafka.ProtocolPlaintext,
		ClientID:            "scramsync-test",
		RequestTimeoutMS:    2000,
		DefaultAPITimeoutMS: 4000,
		ScramMechanisms:     []string{"SCRAM-SHA-256", "SCRAM-SHA-512"},
		ScramIterations:     4096,
	}}
}

type stubDirectory map[string]*host.User

func (d stubDirectory) UserByID(_ context.Context, id string) (*host.User, error) {
	u, ok := d[id]
	if !ok {
		return nil, context.Canceled
	}
	return u, nil
}

type stubSession struct {
	id  string
	dir host.UserDirectory
}

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) Users(string) (host.UserDirectory, error) { return s.dir, nil }

// The whole pipeline against an in-memory cluster: the hash interceptor
// deposits, the event observer correlates, the syncer provisions, and the
// cluster ends up with credentials for both mechanisms.
func TestPasswordChangeReachesCluster(t *testing.T) {
	fake := fakeCluster(t)
	e, err := New(testConfig(fake.ListenAddrs()...))
	require.NoError(t, err)
	defer e.Close()

	sess := &stubSession{id: "sess-1"}
	h := e.HasherFactory().New(sess)
	_, err = h.EncodeCredential("pencil", 0)
	require.NoError(t, err)

	l := e.ListenerFactory().New(sess)
	l.OnAdminEvent(context.Background(), host.AdminEvent{
		RealmID:        "acme",
		Operation:      host.OperationCreate,
		ResourceType:   host.ResourceUser,
		ResourcePath:   "users/u-1",
		Representation: json.RawMessage(`{"username":"alice"}`),
	})

	creds, err := e.Syncer().Describe(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, creds, 2, "both configured mechanisms must be provisioned")
	assert.Zero(t, e.Store().Len(), "the deposit must be consumed")
}

type builtinHasherFactory struct{}

func (builtinHasherFactory) ID() string { return "pbkdf2-sha256" }

func (builtinHasherFactory) Order() int { return 0 }

func (builtinHasherFactory) New(host.Session) host.PasswordHasher { return nil }

func TestRegisterShadowsBuiltinHasher(t *testing.T) {
	e, err := New(testConfig("localhost:9092"))
	require.NoError(t, err)
	defer e.Close()

	r := host.NewRegistry()
	r.RegisterHasher(builtinHasherFactory{})
	e.Register(r)

	f, ok := r.Hasher("pbkdf2-sha256")
	require.True(t, ok)
	assert.Same(t, e.HasherFactory(), f, "the engine's factory must outrank the built-in")
	assert.Len(t, r.Listeners(), 1)
}

func TestSessionClosedWipesDeposit(t *testing.T) {
	e, err := New(testConfig("localhost:9092"))
	require.NoError(t, err)
	defer e.Close()

	sess := &stubSession{id: "sess-1"}
	h := e.HasherFactory().New(sess)
	_, err = h.EncodeCredential("pencil", 0)
	require.NoError(t, err)
	require.Equal(t, 1, e.Store().Len())

	e.SessionClosed(sess)
	assert.Zero(t, e.Store().Len())

	assert.NotPanics(t, func() { e.SessionClosed(nil) })
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	e, err := New(testConfig("localhost:9092"))
	require.NoError(t, err)

	e.Close()
	e.Close()

	err = e.Syncer().Upsert(context.Background(), kafka.Job{
		Username: "alice", Password: []byte("pencil"),
	})
	assert.ErrorIs(t, err, kafka.ErrClosed)
}

func TestDegradedPolicy(t *testing.T) {
	fake := fakeCluster(t)

	// No representation and no directory: the username degrades to the raw
	// user ID and the job is refused unless AllowDegraded opts in.
	resetEvent := host.AdminEvent{
		RealmID:      "acme",
		Operation:    host.OperationAction,
		ResourceType: host.ResourceUser,
		ResourcePath: "users/u-9/reset-password",
	}

	t.Run("refused by default", func(t *testing.T) {
		e, err := New(testConfig(fake.ListenAddrs()...))
		require.NoError(t, err)
		defer e.Close()

		sess := &stubSession{id: "sess-a"}
		_, err = e.HasherFactory().New(sess).EncodeCredential("pencil", 0)
		require.NoError(t, err)
		e.ListenerFactory().New(sess).OnAdminEvent(context.Background(), resetEvent)

		creds, err := e.Syncer().Describe(context.Background(), "u-9")
		require.NoError(t, err)
		assert.Empty(t, creds)
	})

	t.Run("allowed by policy", func(t *testing.T) {
		cfg := testConfig(fake.ListenAddrs()...)
		cfg.AllowDegraded = true
		e, err := New(cfg)
		require.NoError(t, err)
		defer e.Close()

		sess := &stubSession{id: "sess-b"}
		_, err = e.HasherFactory().New(sess).EncodeCredential("pencil", 0)
		require.NoError(t, err)
		e.ListenerFactory().New(sess).OnAdminEvent(context.Background(), resetEvent)

		creds, err := e.Syncer().Describe(context.Background(), "u-9")
		require.NoError(t, err)
		assert.Len(t, creds, 2)
	})
}

func TestDirectoryResolvedUsername(t *testing.T) {
	fake := fakeCluster(t)
	e, err := New(testConfig(fake.ListenAddrs()...))
	require.NoError(t, err)
	defer e.Close()

	sess := &stubSession{
		id:  "sess-1",
		dir: stubDirectory{"u-1": {ID: "u-1", Username: "bob"}},
	}
	_, err = e.HasherFactory().New(sess).EncodeCredential("hunter2", 0)
	require.NoError(t, err)

	e.ListenerFactory().New(sess).OnAdminEvent(context.Background(), host.AdminEvent{
		RealmID:      "acme",
		Operation:    host.OperationAction,
		ResourceType: host.ResourceUser,
		ResourcePath: "users/u-1/reset-password",
	})

	creds, err := e.Syncer().Describe(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_SCRAM_MECHANISMS", "SCRAM-SHA-512")

	e, err := FromEnv(WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, e.cfg.Kafka.BootstrapServers)
}

func TestFromEnvInvalid(t *testing.T) {
	t.Setenv("KAFKA_SECURITY_PROTOCOL", "QUIC")

	_, err := FromEnv()
	require.ErrorIs(t, err, kafka.ErrConfig)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, kafka.ErrConfig)
}
