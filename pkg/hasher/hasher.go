// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package hasher implements the password-hash provider the engine registers
// over the host's built-in PBKDF2-SHA256 one. It hashes exactly the way the
// built-in does, so stored credentials stay interchangeable; its one extra
// behaviour is depositing the cleartext into the correlation store before
// hashing, where the event observer of the same request picks it up.
package hasher

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"

	"github.com/scramsync/scramsync/pkg/correlation"
	"github.com/scramsync/scramsync/pkg/host"
)

const (
	// ProviderID is the identifier of the host's default PBKDF2-SHA256
	// provider. Registering under the same ID at a higher order shadows the
	// built-in wherever it would have been used.
	ProviderID = "pbkdf2-sha256"

	// DefaultOrder outranks the built-in provider's order of zero.
	DefaultOrder = 100

	// DefaultIterations is substituted when the host passes no explicit
	// work factor, matching the built-in provider's default.
	DefaultIterations = 27500

	saltLen       = 16
	derivedKeyLen = 64
)

// Hasher hashes passwords for one host session. It must behave exactly like
// the provider it shadows: the host stores and later verifies what it
// returns, so any encoding drift breaks password login silently.
type Hasher struct {
	store *correlation.Store
	key   string
	log   zerolog.Logger
}

var _ host.PasswordHasher = (*Hasher)(nil)

// New returns a hasher depositing cleartexts under key, the session ID
// shared with the event observer.
func New(store *correlation.Store, key string, log zerolog.Logger) *Hasher {
	return &Hasher{store: store, key: key, log: log}
}

// EncodeCredential deposits raw in the correlation store and then runs the
// standard PBKDF2-SHA256 pipeline: 16 random salt bytes, a 64-byte derived
// key, base64 in the credential value. The deposit happens first so that a
// hashing failure cannot lose the hand-off.
func (h *Hasher) EncodeCredential(raw string, iterations int) (*host.PasswordCredential, error) {
	h.deposit(raw)

	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("hasher: drawing salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(raw), salt, iterations, derivedKeyLen, sha256.New)
	return &host.PasswordCredential{
		Algorithm:  ProviderID,
		Iterations: iterations,
		Salt:       salt,
		Value:      base64.StdEncoding.EncodeToString(hash),
	}, nil
}

// Encode is the string-only variant of EncodeCredential; the deposit side
// effect applies here too.
func (h *Hasher) Encode(raw string, iterations int) (string, error) {
	cred, err := h.EncodeCredential(raw, iterations)
	if err != nil {
		return "", err
	}
	return cred.Value, nil
}

// Verify re-derives raw with the credential's salt and iterations and
// compares the encoded values in constant time.
func (h *Hasher) Verify(raw string, cred *host.PasswordCredential) bool {
	if cred == nil || len(cred.Salt) == 0 || cred.Value == "" {
		return false
	}
	iterations := cred.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	hash := pbkdf2.Key([]byte(raw), cred.Salt, iterations, derivedKeyLen, sha256.New)
	encoded := base64.StdEncoding.EncodeToString(hash)
	return subtle.ConstantTimeCompare([]byte(encoded), []byte(cred.Value)) == 1
}

// PolicyCheck reports whether the stored credential already satisfies the
// policy, i.e. needs no rehash.
func (h *Hasher) PolicyCheck(policy host.PasswordPolicy, cred *host.PasswordCredential) bool {
	if cred == nil {
		return false
	}
	return policy.HashIterations == cred.Iterations && cred.Algorithm == ProviderID
}

// deposit is best-effort: the hash must succeed (and fail) exactly as the
// built-in provider would, whatever happens to the hand-off.
func (h *Hasher) deposit(raw string) {
	if raw == "" || h.store == nil {
		return
	}
	h.store.Put(h.key, []byte(raw))
	h.log.Debug().Str("session_id", h.key).Msg("cleartext deposited for correlation")
}

// Factory builds one Hasher per host session.
type Factory struct {
	store *correlation.Store
	log   zerolog.Logger
	order int
}

var _ host.HasherFactory = (*Factory)(nil)

// NewFactory returns a factory registering under the built-in provider's ID
// at DefaultOrder.
func NewFactory(store *correlation.Store, log zerolog.Logger) *Factory {
	return &Factory{store: store, log: log, order: DefaultOrder}
}

func (f *Factory) ID() string { return ProviderID }

func (f *Factory) Order() int { return f.order }

func (f *Factory) New(s host.Session) host.PasswordHasher {
	return New(f.store, s.ID(), f.log.With().Str("component", "hasher").Logger())
}
