// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package host declares the contracts between the credential synchronisation
// engine and the identity provider that embeds it: the per-request session,
// the user directory, event notifications, the password-hash provider
// capability, and the registry through which provider factories are
// discovered.
package host

import (
	"context"
	"encoding/json"
)

// Session is the per-request view the host hands to provider factories.
// Everything the engine does is scoped to a session: the hash interceptor
// and the event observer for one request share the same session, and the
// session ID keys the cleartext correlation slot between them.
type Session interface {
	// ID identifies the host request this session serves. IDs must be
	// unique among concurrently live sessions.
	ID() string

	// Users returns the user directory of a realm.
	Users(realm string) (UserDirectory, error)
}

// UserDirectory resolves stored users within a single realm.
type UserDirectory interface {
	UserByID(ctx context.Context, id string) (*User, error)
}

// User is the subset of the host's user model the engine needs.
type User struct {
	ID       string
	Username string
}

// OperationType classifies an administrative operation.
type OperationType string

const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
	OperationAction OperationType = "ACTION"
)

// ResourceType names the kind of resource an administrative operation
// touched. Only user resources are of interest here; others pass through
// listeners untouched.
type ResourceType string

const (
	ResourceUser  ResourceType = "USER"
	ResourceRealm ResourceType = "REALM"
)

// AdminEvent is the host's notification for one administrative operation.
// Representation carries the resource JSON when the host is configured to
// include it; it may be absent, partial, or shaped differently across host
// versions, so consumers must parse it defensively.
type AdminEvent struct {
	RealmID        string
	Operation      OperationType
	ResourceType   ResourceType
	ResourcePath   string
	Representation json.RawMessage
}

// UserEventType classifies a self-service (non-administrative) user event.
type UserEventType string

const (
	EventRegister       UserEventType = "REGISTER"
	EventUpdatePassword UserEventType = "UPDATE_PASSWORD"
	EventUpdateProfile  UserEventType = "UPDATE_PROFILE"
)

// UserEvent is the host's notification for a user-initiated action. Unlike
// admin events it carries no representation; the user ID is always present.
type UserEvent struct {
	RealmID string
	Type    UserEventType
	UserID  string
}

// PasswordPolicy is the subset of the host's password policy that hash
// providers are asked to check credentials against.
type PasswordPolicy struct {
	HashIterations int
}

// PasswordCredential is the host's stored password shape: which algorithm
// produced it, with how many iterations, over which salt, and the base64
// encoding of the derived key.
type PasswordCredential struct {
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"hashIterations"`
	Salt       []byte `json:"salt"`
	Value      string `json:"value"`
}

// PasswordHasher is the host's password-hash provider capability. The host
// calls EncodeCredential when storing a new password, Verify on login, and
// PolicyCheck when deciding whether a stored credential needs rehashing.
type PasswordHasher interface {
	Encode(raw string, iterations int) (string, error)
	EncodeCredential(raw string, iterations int) (*PasswordCredential, error)
	Verify(raw string, cred *PasswordCredential) bool
	PolicyCheck(policy PasswordPolicy, cred *PasswordCredential) bool
}

// EventListener receives host event notifications. Implementations must not
// let failures escape into the host's dispatch loop.
type EventListener interface {
	OnAdminEvent(ctx context.Context, ev AdminEvent)
	OnEvent(ctx context.Context, ev UserEvent)
}

// HasherFactory builds one PasswordHasher per session.
type HasherFactory interface {
	// ID is the provider identifier the factory registers under. The host
	// resolves an ID to the registered factory with the highest Order, so
	// an extension can shadow a built-in by re-using its ID with a larger
	// order value.
	ID() string
	Order() int
	New(s Session) PasswordHasher
}

// ListenerFactory builds one EventListener per session.
type ListenerFactory interface {
	ID() string
	New(s Session) EventListener
}
