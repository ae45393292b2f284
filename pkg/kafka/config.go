// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package kafka owns everything that talks to the cluster: the environment
// driven admin-client configuration, the lazily initialised client session,
// and the syncer that upserts SCRAM credentials.
package kafka

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	saslscram "github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/scramsync/scramsync/pkg/scram"
)

// Security protocols, named as Kafka operators know them.
const (
	ProtocolPlaintext     = "PLAINTEXT"
	ProtocolSSL           = "SSL"
	ProtocolSASLPlaintext = "SASL_PLAINTEXT"
	ProtocolSASLSSL       = "SASL_SSL"
)

const redacted = "[REDACTED]"

// Config is the admin-client configuration. The environment is the only
// operator surface; every field maps to a KAFKA_-prefixed variable.
type Config struct {
	BootstrapServers []string `envconfig:"BOOTSTRAP_SERVERS" default:"localhost:9092"`
	SecurityProtocol string   `envconfig:"SECURITY_PROTOCOL" default:"PLAINTEXT"`

	SASLMechanism  string `envconfig:"SASL_MECHANISM"`
	SASLJAASConfig string `envconfig:"SASL_JAAS_CONFIG"`

	// The truststore is a PEM CA bundle and the keystore a PEM client
	// certificate with its private key. Store passwords only matter for
	// encrypted PKCS#8 keys; PEM CA bundles need none, so the truststore
	// password is accepted for parity and otherwise unused.
	SSLTruststoreLocation     string `envconfig:"SSL_TRUSTSTORE_LOCATION"`
	SSLTruststorePassword     string `envconfig:"SSL_TRUSTSTORE_PASSWORD"`
	SSLKeystoreLocation       string `envconfig:"SSL_KEYSTORE_LOCATION"`
	SSLKeystorePassword       string `envconfig:"SSL_KEYSTORE_PASSWORD"`
	SSLKeyPassword            string `envconfig:"SSL_KEY_PASSWORD"`
	SSLEndpointIdentification string `envconfig:"SSL_ENDPOINT_IDENTIFICATION_ALGORITHM"`

	RequestTimeoutMS    int `envconfig:"REQUEST_TIMEOUT_MS" default:"30000"`
	DefaultAPITimeoutMS int `envconfig:"DEFAULT_API_TIMEOUT_MS" default:"60000"`

	ClientID string `envconfig:"CLIENT_ID" default:"scramsync"`

	ScramMechanisms []string `envconfig:"SCRAM_MECHANISMS" default:"SCRAM-SHA-256,SCRAM-SHA-512"`
	ScramIterations int      `envconfig:"SCRAM_ITERATIONS" default:"4096"`
}

// FromEnv reads the KAFKA_* environment and validates the result.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("kafka", &c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for coherence without touching the
// network or the filesystem.
func (c *Config) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("%w: no bootstrap servers", ErrConfig)
	}
	switch c.SecurityProtocol {
	case ProtocolPlaintext, ProtocolSSL, ProtocolSASLPlaintext, ProtocolSASLSSL:
	default:
		return fmt.Errorf("%w: unknown security protocol %q", ErrConfig, c.SecurityProtocol)
	}
	if c.saslEnabled() {
		if _, err := c.saslMechanism(); err != nil {
			return err
		}
	}
	if c.RequestTimeoutMS <= 0 || c.DefaultAPITimeoutMS <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrConfig)
	}
	// Both timeouts and the iteration count travel as int32 on the wire.
	if c.RequestTimeoutMS > math.MaxInt32 || c.DefaultAPITimeoutMS > math.MaxInt32 {
		return fmt.Errorf("%w: timeouts must fit 32 bits of milliseconds", ErrConfig)
	}
	if c.ScramIterations < scram.MinIterations {
		return fmt.Errorf("%w: KAFKA_SCRAM_ITERATIONS %d below minimum %d", ErrConfig, c.ScramIterations, scram.MinIterations)
	}
	if c.ScramIterations > math.MaxInt32 {
		return fmt.Errorf("%w: KAFKA_SCRAM_ITERATIONS %d above maximum %d", ErrConfig, c.ScramIterations, math.MaxInt32)
	}
	if len(c.ScramMechanisms) == 0 {
		return fmt.Errorf("%w: empty KAFKA_SCRAM_MECHANISMS", ErrConfig)
	}
	if _, err := scram.ParseMechanisms(c.ScramMechanisms); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

func (c *Config) saslEnabled() bool {
	return c.SecurityProtocol == ProtocolSASLPlaintext || c.SecurityProtocol == ProtocolSASLSSL
}

func (c *Config) tlsEnabled() bool {
	return c.SecurityProtocol == ProtocolSSL || c.SecurityProtocol == ProtocolSASLSSL
}

// saslMechanism maps the configured mechanism and JAAS credentials to a
// franz-go SASL mechanism.
func (c *Config) saslMechanism() (sasl.Mechanism, error) {
	if c.SASLMechanism == "" {
		return nil, fmt.Errorf("%w: %s requires KAFKA_SASL_MECHANISM", ErrConfig, c.SecurityProtocol)
	}
	user, pass, err := parseJAAS(c.SASLJAASConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: KAFKA_SASL_JAAS_CONFIG: %v", ErrConfig, err)
	}
	switch strings.ToUpper(c.SASLMechanism) {
	case "PLAIN":
		return plain.Auth{User: user, Pass: pass}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return saslscram.Auth{User: user, Pass: pass}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return saslscram.Auth{User: user, Pass: pass}.AsSha512Mechanism(), nil
	case "GSSAPI", "OAUTHBEARER":
		return nil, fmt.Errorf("%w: SASL mechanism %s is not supported by this client", ErrConfig, c.SASLMechanism)
	}
	return nil, fmt.Errorf("%w: unknown SASL mechanism %q", ErrConfig, c.SASLMechanism)
}

// jaasOption matches one key="value" option, honouring escaped quotes.
var jaasOption = regexp.MustCompile(`(\w+)\s*=\s*"((?:\\.|[^"\\])*)"`)

// parseJAAS extracts username and password from a Kafka JAAS login string,
// e.g.
//
//	org.apache.kafka.common.security.scram.ScramLoginModule required username="alice" password="s3cret";
//
// Only the key="value" options are interpreted; the login module class and
// control flag are accepted and ignored.
func parseJAAS(s string) (user, pass string, err error) {
	if strings.TrimSpace(s) == "" {
		return "", "", errors.New("empty JAAS config")
	}
	opts := map[string]string{}
	unescape := strings.NewReplacer(`\"`, `"`, `\\`, `\`)
	for _, m := range jaasOption.FindAllStringSubmatch(s, -1) {
		opts[m[1]] = unescape.Replace(m[2])
	}
	if opts["username"] == "" {
		return "", "", errors.New("no username option")
	}
	return opts["username"], opts["password"], nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) DefaultAPITimeout() time.Duration {
	return time.Duration(c.DefaultAPITimeoutMS) * time.Millisecond
}

// Mechanisms returns the configured mechanism set. Validate has established
// parseability; an unvalidated config yields the forward-compatible default.
func (c *Config) Mechanisms() []scram.Mechanism {
	ms, err := scram.ParseMechanisms(c.ScramMechanisms)
	if err != nil || len(ms) == 0 {
		return []scram.Mechanism{scram.SHA256, scram.SHA512}
	}
	return ms
}

// MarshalZerologObject logs the configuration with secrets redacted. The
// JAAS string embeds a password, so it is redacted wholesale.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Strs("bootstrap_servers", c.BootstrapServers).
		Str("security_protocol", c.SecurityProtocol).
		Str("client_id", c.ClientID).
		Int("request_timeout_ms", c.RequestTimeoutMS).
		Int("default_api_timeout_ms", c.DefaultAPITimeoutMS).
		Strs("scram_mechanisms", c.ScramMechanisms).
		Int("scram_iterations", c.ScramIterations)
	if c.SASLMechanism != "" {
		e.Str("sasl_mechanism", c.SASLMechanism)
	}
	if c.SASLJAASConfig != "" {
		e.Str("sasl_jaas_config", redacted)
	}
	if c.SSLTruststoreLocation != "" {
		e.Str("ssl_truststore_location", c.SSLTruststoreLocation)
	}
	if c.SSLTruststorePassword != "" {
		e.Str("ssl_truststore_password", redacted)
	}
	if c.SSLKeystoreLocation != "" {
		e.Str("ssl_keystore_location", c.SSLKeystoreLocation)
	}
	if c.SSLKeystorePassword != "" {
		e.Str("ssl_keystore_password", redacted)
	}
	if c.SSLKeyPassword != "" {
		e.Str("ssl_key_password", redacted)
	}
	if c.SSLEndpointIdentification != "" {
		e.Str("ssl_endpoint_identification_algorithm", c.SSLEndpointIdentification)
	}
}
