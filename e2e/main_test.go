//go:build e2e

// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package e2e exercises the credential synchronisation pipeline against a
// real Kafka broker: passwords intercepted on a host session must let a
// SCRAM client authenticate against the cluster moments later.
//
// The broker container exposes two listeners: a PLAINTEXT one the engine's
// admin client uses to alter credentials, and a SASL_PLAINTEXT one the tests
// log in through to prove the provisioned verifiers actually authenticate.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	saslscram "github.com/twmb/franz-go/pkg/sasl/scram"
	"github.com/twmb/franz-go/plugin/kzerolog"

	"github.com/scramsync/scramsync/pkg/engine"
	"github.com/scramsync/scramsync/pkg/host"
	"github.com/scramsync/scramsync/pkg/kafka"
	"github.com/scramsync/scramsync/pkg/scram"
)

const (
	plaintextAddr = "127.0.0.1:19092"
	saslAddr      = "127.0.0.1:19094"
)

var (
	dockerPool *dockertest.Pool
	broker     *dockertest.Resource
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		panic(err)
	}
	if err := pool.Client.Ping(); err != nil {
		panic(err)
	}
	dockerPool = pool

	broker, err = pool.RunWithOptions(&dockertest.RunOptions{
		Name:       "scramsync-e2e-kafka",
		Repository: "bitnami/kafka",
		Tag:        "latest",
		Hostname:   "kafka",
		Env: []string{
			"KAFKA_BROKER_ID=1",
			"KAFKA_CFG_NODE_ID=1",
			"KAFKA_ENABLE_KRAFT=yes",
			"KAFKA_CFG_PROCESS_ROLES=broker,controller",
			"KAFKA_CFG_CONTROLLER_LISTENER_NAMES=CONTROLLER",
			"KAFKA_CFG_LISTENERS=PLAINTEXT://:19092,SASL://:19094,CONTROLLER://:9093",
			"KAFKA_CFG_LISTENER_SECURITY_PROTOCOL_MAP=CONTROLLER:PLAINTEXT,PLAINTEXT:PLAINTEXT,SASL:SASL_PLAINTEXT",
			"KAFKA_CFG_ADVERTISED_LISTENERS=PLAINTEXT://127.0.0.1:19092,SASL://127.0.0.1:19094",
			"KAFKA_CFG_CONTROLLER_QUORUM_VOTERS=1@127.0.0.1:9093",
			"KAFKA_CFG_INTER_BROKER_LISTENER_NAME=PLAINTEXT",
			"KAFKA_CFG_SASL_ENABLED_MECHANISMS=SCRAM-SHA-256,SCRAM-SHA-512",
			"ALLOW_PLAINTEXT_LISTENER=yes",
		},
		PortBindings: map[docker.Port][]docker.PortBinding{
			"19092/tcp": {{HostIP: "localhost", HostPort: "19092/tcp"}},
			"19094/tcp": {{HostIP: "localhost", HostPort: "19094/tcp"}},
		},
		ExposedPorts: []string{"19092/tcp", "19094/tcp"},
	})
	if err != nil {
		panic(fmt.Sprintf("could not start kafka: %s", err))
	}

	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		client, err := adminClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Ping(ctx)
	}); err != nil {
		panic(fmt.Sprintf("could not connect to kafka: %s", err))
	}

	code := m.Run()

	if err := pool.Purge(broker); err != nil {
		panic(fmt.Sprintf("could not purge kafka: %s", err))
	}
	os.Exit(code)
}

// adminClient dials the PLAINTEXT listener the way the engine does.
func adminClient(extra ...kgo.Opt) (*kgo.Client, error) {
	logger := testLogger()
	opts := []kgo.Opt{
		kgo.SeedBrokers(plaintextAddr),
		kgo.WithLogger(kzerolog.New(&logger)),
	}
	return kgo.NewClient(append(opts, extra...)...)
}

func testLogger() zerolog.Logger {
	if testing.Verbose() {
		return zerolog.New(os.Stderr)
	}
	return zerolog.New(io.Discard)
}

// newEngine builds an engine against the container's PLAINTEXT listener.
// mutate tweaks the config before construction; logs go to the returned
// logger's writer so tests can assert on outcome records.
func newEngine(t *testing.T, w io.Writer, mutate func(*engine.Config)) *engine.Engine {
	t.Helper()
	cfg := engine.Config{Kafka: kafka.Config{
		BootstrapServers:    []string{plaintextAddr},
		SecurityProtocol:    kafka.ProtocolPlaintext,
		ClientID:            "scramsync-e2e",
		RequestTimeoutMS:    5000,
		DefaultAPITimeoutMS: 10000,
		ScramMechanisms:     []string{"SCRAM-SHA-256", "SCRAM-SHA-512"},
		ScramIterations:     4096,
	}}
	if mutate != nil {
		mutate(&cfg)
	}

	log := testLogger()
	if w != nil {
		log = zerolog.New(w)
	}
	e, err := engine.New(cfg, engine.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// scramLogin performs a full SASL handshake against the broker's SCRAM
// listener. The error reports whether the cluster accepted the credentials.
func scramLogin(user, pass string, m scram.Mechanism) error {
	auth := saslscram.Auth{User: user, Pass: pass}
	mech := auth.AsSha256Mechanism()
	if m == scram.SHA512 {
		mech = auth.AsSha512Mechanism()
	}

	logger := testLogger()
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(saslAddr),
		kgo.SASL(mech),
		kgo.WithLogger(kzerolog.New(&logger)),
		kgo.DialTimeout(5*time.Second),
		kgo.RetryTimeout(5*time.Second),
	)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return cl.Ping(ctx)
}

// requireLogin retries the handshake until the freshly written credential is
// visible to the authenticator.
func requireLogin(t *testing.T, user, pass string, m scram.Mechanism) {
	t.Helper()
	var err error
	for deadline := time.Now().Add(30 * time.Second); time.Now().Before(deadline); {
		if err = scramLogin(user, pass, m); err == nil {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("SCRAM login as %s via %s did not succeed: %v", user, m, err)
}

// requireNoLogin retries until the handshake is rejected, giving credential
// removal the same propagation window writes get.
func requireNoLogin(t *testing.T, user, pass string, m scram.Mechanism) {
	t.Helper()
	for deadline := time.Now().Add(30 * time.Second); time.Now().Before(deadline); {
		if err := scramLogin(user, pass, m); err != nil {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("SCRAM login as %s via %s kept succeeding", user, m)
}

func pauseBroker(t *testing.T) {
	t.Helper()
	require.NoError(t, dockerPool.Client.PauseContainer(broker.Container.ID))
	// Leave the shared broker responsive for whatever test runs next, even
	// when this one fails before its own unpause. Double unpausing errors,
	// which is fine here.
	t.Cleanup(func() { _ = dockerPool.Client.UnpauseContainer(broker.Container.ID) })
}

func unpauseBroker(t *testing.T) {
	t.Helper()
	require.NoError(t, dockerPool.Client.UnpauseContainer(broker.Container.ID))

	require.NoError(t, dockerPool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		client, err := adminClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Ping(ctx)
	}))
}

// session is the host request the scenarios drive the engine with. The same
// session instance backs the hash interceptor and the event listener, as it
// would inside a real host.
type session struct {
	id  string
	dir host.UserDirectory
}

func (s *session) ID() string { return s.id }

func (s *session) Users(string) (host.UserDirectory, error) { return s.dir, nil }

type directory map[string]*host.User

func (d directory) UserByID(_ context.Context, id string) (*host.User, error) {
	u, ok := d[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func adminEvent(op host.OperationType, path, rep string) host.AdminEvent {
	ev := host.AdminEvent{
		RealmID:      "acme",
		Operation:    op,
		ResourceType: host.ResourceUser,
		ResourcePath: path,
	}
	if rep != "" {
		ev.Representation = json.RawMessage(rep)
	}
	return ev
}
