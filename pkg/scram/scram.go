// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package scram synthesises RFC 5802 SCRAM verifiers for the SHA-256 and
// SHA-512 mechanism variants. Given a cleartext password, an iteration count
// and a salt it derives the salted password, StoredKey and ServerKey a
// cluster needs to authenticate the user without ever storing the password.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinIterations is the smallest PBKDF2 work factor accepted for a
	// verifier. RFC 5802 sets 4096 as the floor and Kafka brokers reject
	// anything below it.
	MinIterations = 4096

	// SaltLen is the number of random bytes drawn for each generated
	// verifier. Salts are never reused across generations.
	SaltLen = 32
)

// Mechanism selects the SCRAM family variant of a verifier. The numeric
// values match the Kafka admin protocol.
type Mechanism int8

const (
	MechanismUnknown Mechanism = iota
	SHA256
	SHA512
)

func (m Mechanism) String() string {
	switch m {
	case SHA256:
		return "SCRAM-SHA-256"
	case SHA512:
		return "SCRAM-SHA-512"
	}
	return "UNKNOWN"
}

// KeyLen is the digest output size: StoredKey, ServerKey and the salted
// password all have this length.
func (m Mechanism) KeyLen() int {
	switch m {
	case SHA256:
		return sha256.Size
	case SHA512:
		return sha512.Size
	}
	return 0
}

func (m Mechanism) hash() func() hash.Hash {
	switch m {
	case SHA256:
		return sha256.New
	case SHA512:
		return sha512.New
	}
	return nil
}

// ParseMechanism maps a canonical mechanism name to its Mechanism. Matching
// is case-insensitive and tolerates the underscore spelling some configs use.
func ParseMechanism(s string) (Mechanism, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")) {
	case "SCRAM-SHA-256", "SHA-256":
		return SHA256, nil
	case "SCRAM-SHA-512", "SHA-512":
		return SHA512, nil
	}
	return MechanismUnknown, fmt.Errorf("%w: %q", ErrUnknownMechanism, s)
}

// ParseMechanisms parses a list of mechanism names, preserving order and
// dropping duplicates.
func ParseMechanisms(names []string) ([]Mechanism, error) {
	var out []Mechanism
	seen := map[Mechanism]bool{}
	for _, n := range names {
		m, err := ParseMechanism(n)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

var (
	ErrEmptyPassword    = errors.New("scram: empty password")
	ErrEmptySalt        = errors.New("scram: empty salt")
	ErrLowIterations    = errors.New("scram: iteration count below minimum")
	ErrUnknownMechanism = errors.New("scram: unknown mechanism")
)

// Verifier is the full derivation for one (password, mechanism) pair. The
// Kafka wire format transmits Salt and SaltedPassword and the broker derives
// the keys itself; StoredKey and ServerKey are computed anyway so callers can
// verify handshakes and tests can pin the math.
type Verifier struct {
	Mechanism      Mechanism
	Iterations     int32
	Salt           []byte
	SaltedPassword []byte
	StoredKey      []byte
	ServerKey      []byte
}

// Generate derives a verifier over a fresh random salt of SaltLen bytes.
func Generate(password []byte, m Mechanism, iterations int32) (*Verifier, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("scram: drawing salt: %w", err)
	}
	return Derive(password, m, iterations, salt)
}

// Derive computes the RFC 5802 derivation for the given salt:
//
//	SaltedPassword = PBKDF2-HMAC-H(password, salt, iterations, len(H))
//	StoredKey      = H(HMAC-H(SaltedPassword, "Client Key"))
//	ServerKey      = HMAC-H(SaltedPassword, "Server Key")
//
// It is deterministic: identical inputs produce byte-identical output.
func Derive(password []byte, m Mechanism, iterations int32, salt []byte) (*Verifier, error) {
	h := m.hash()
	if h == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMechanism, int8(m))
	}
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d < %d", ErrLowIterations, iterations, MinIterations)
	}

	salted := pbkdf2.Key(password, salt, int(iterations), m.KeyLen(), h)
	clientKey := hmacSum(h, salted, []byte("Client Key"))
	digest := h()
	digest.Write(clientKey)
	storedKey := digest.Sum(nil)
	serverKey := hmacSum(h, salted, []byte("Server Key"))

	return &Verifier{
		Mechanism:      m,
		Iterations:     iterations,
		Salt:           salt,
		SaltedPassword: salted,
		StoredKey:      storedKey,
		ServerKey:      serverKey,
	}, nil
}

// Normalize applies SASLprep to a password. Kafka's own tooling passes
// passwords through unprepared, so normalisation is opt-in at the job
// boundary for interoperability with clients that do prepare.
func Normalize(password []byte) ([]byte, error) {
	prepared, err := stringprep.SASLprep.Prepare(string(password))
	if err != nil {
		return nil, fmt.Errorf("scram: saslprep: %w", err)
	}
	return []byte(prepared), nil
}

func hmacSum(h func() hash.Hash, key, msg []byte) []byte {
	mac := hmac.New(h, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
