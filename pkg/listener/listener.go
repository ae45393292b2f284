// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package listener implements the event observer half of the engine: it
// watches the host's admin and user events for password changes, joins them
// with the cleartext the hash interceptor deposited during the same request,
// and drives the Kafka syncer. It never fails the host's event dispatch.
package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/rs/zerolog"

	"github.com/scramsync/scramsync/pkg/correlation"
	"github.com/scramsync/scramsync/pkg/host"
	"github.com/scramsync/scramsync/pkg/kafka"
)

var (
	// ErrEventShape marks an event whose path or representation could not
	// be interpreted. The event is acknowledged and skipped.
	ErrEventShape = errors.New("listener: malformed event")

	// ErrCorrelationMiss marks a password change with no retrievable
	// cleartext: nothing was deposited, or the deposit expired.
	ErrCorrelationMiss = errors.New("listener: no cleartext available")
)

// CredentialSyncer is the slice of the Kafka syncer the listener drives.
type CredentialSyncer interface {
	Upsert(ctx context.Context, job kafka.Job) error
	Delete(ctx context.Context, username string) error
}

var _ CredentialSyncer = (*kafka.Syncer)(nil)

// Listener observes one host session. It shares the correlation store with
// the hash interceptor of the same session and calls the syncer inline on
// the host's request goroutine.
type Listener struct {
	session host.Session
	store   *correlation.Store
	syncer  CredentialSyncer
	log     zerolog.Logger
}

var _ host.EventListener = (*Listener)(nil)

// New returns a listener for one session.
func New(session host.Session, store *correlation.Store, syncer CredentialSyncer, log zerolog.Logger) *Listener {
	return &Listener{session: session, store: store, syncer: syncer, log: log}
}

// OnAdminEvent reacts to user creation, password resets and user deletion.
// Everything else passes through untouched.
func (l *Listener) OnAdminEvent(ctx context.Context, ev host.AdminEvent) {
	defer l.contain(ev.RealmID, ev.ResourcePath)

	switch {
	case ev.Operation == host.OperationCreate && ev.ResourceType == host.ResourceUser:
		l.syncPassword(ctx, ev)
	case ev.Operation == host.OperationAction && strings.Contains(ev.ResourcePath, "reset-password"):
		l.syncPassword(ctx, ev)
	case ev.Operation == host.OperationDelete && ev.ResourceType == host.ResourceUser:
		l.removeUser(ctx, ev)
	}
}

// OnEvent reacts to self-service registrations and password updates. These
// carry no representation, so the username comes from the directory and the
// cleartext from the correlation store only.
func (l *Listener) OnEvent(ctx context.Context, ev host.UserEvent) {
	defer l.contain(ev.RealmID, ev.UserID)

	switch ev.Type {
	case host.EventRegister, host.EventUpdatePassword:
	default:
		return
	}

	username, degraded := l.resolveUsername(ctx, ev.RealmID, ev.UserID, "")
	password, ok := l.store.Take(l.session.ID())
	if !ok {
		l.skip(ev.RealmID, ev.UserID, ErrCorrelationMiss)
		return
	}
	l.submit(ctx, kafka.Job{
		RealmID:  ev.RealmID,
		UserID:   ev.UserID,
		Username: username,
		Password: password,
		Degraded: degraded,
	})
}

// syncPassword joins an admin event with its cleartext and submits the job.
func (l *Listener) syncPassword(ctx context.Context, ev host.AdminEvent) {
	userID, err := parseUserID(ev.ResourcePath)
	if err != nil {
		l.skip(ev.RealmID, ev.ResourcePath, err)
		return
	}
	rep := parseRepresentation(ev.Representation)
	username, degraded := l.resolveUsername(ctx, ev.RealmID, userID, rep.username)

	// The slot is drained even when the representation already carries the
	// value, so nothing lingers for a later request to mis-correlate.
	deposited, haveDeposit := l.store.Take(l.session.ID())

	password := rep.password
	switch {
	case len(password) == 0 && !haveDeposit:
		l.skip(ev.RealmID, userID, ErrCorrelationMiss)
		return
	case len(password) == 0:
		password = deposited
	case haveDeposit:
		if !bytes.Equal(password, deposited) {
			l.log.Warn().
				Str("realm_id", ev.RealmID).
				Str("user_id", userID).
				Msg("event representation and intercepted password differ, using the representation")
		}
		wipe(deposited)
	}

	l.submit(ctx, kafka.Job{
		RealmID:  ev.RealmID,
		UserID:   userID,
		Username: username,
		Password: password,
		Degraded: degraded,
	})
}

// removeUser drops the user's SCRAM credentials. Deletion events fire after
// the user is gone from the directory, so the username resolves only when
// the event representation still carries it; a raw ID is never deleted as a
// principal name.
func (l *Listener) removeUser(ctx context.Context, ev host.AdminEvent) {
	userID, err := parseUserID(ev.ResourcePath)
	if err != nil {
		l.skip(ev.RealmID, ev.ResourcePath, err)
		return
	}
	rep := parseRepresentation(ev.Representation)
	username, degraded := l.resolveUsername(ctx, ev.RealmID, userID, rep.username)
	if degraded {
		l.skip(ev.RealmID, userID, fmt.Errorf("%w: username unresolved, credentials not removed", ErrEventShape))
		return
	}
	// The syncer records the outcome; a second line here would double-log.
	_ = l.syncer.Delete(ctx, username)
}

// submit hands the job to the syncer, which owns the outcome record.
func (l *Listener) submit(ctx context.Context, job kafka.Job) {
	_ = l.syncer.Upsert(ctx, job)
}

// resolveUsername tries the representation, then the user directory, then
// falls back to the raw user ID, which marks the job degraded.
func (l *Listener) resolveUsername(ctx context.Context, realmID, userID, fromRep string) (string, bool) {
	if fromRep != "" {
		return fromRep, false
	}
	dir, err := l.session.Users(realmID)
	if err == nil && dir != nil {
		u, err := dir.UserByID(ctx, userID)
		if err == nil && u != nil && u.Username != "" {
			return u.Username, false
		}
	}
	return userID, true
}

// skip records a structured warning for an event that produced no job.
func (l *Listener) skip(realmID, subject string, err error) {
	l.log.Warn().
		Err(err).
		Str("realm_id", realmID).
		Str("subject", subject).
		Msg("event skipped")
}

// contain stops panics at the component boundary; the host's dispatch loop
// must survive whatever happens in here.
func (l *Listener) contain(realmID, subject string) {
	if r := recover(); r != nil {
		l.log.Error().
			Str("realm_id", realmID).
			Str("subject", subject).
			Interface("panic", r).
			Msg("event handling panicked")
	}
}

// parseUserID extracts the ID following the last "users" segment of an admin
// resource path such as "users/{id}" or "users/{id}/reset-password".
func parseUserID(path string) (string, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segs) - 2; i >= 0; i-- {
		if segs[i] == "users" && segs[i+1] != "" {
			return segs[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: no user id in path %q", ErrEventShape, path)
}

// representation is what the engine reads out of an admin event's resource
// JSON. Hosts differ in what they include, so absence of either field is
// normal.
type representation struct {
	username string
	password []byte
}

// parseRepresentation tolerates missing, partial and malformed JSON: the
// fields feed fallback chains, they are never required.
func parseRepresentation(raw []byte) representation {
	var rep representation
	if len(raw) == 0 {
		return rep
	}
	c, err := gabs.ParseJSON(raw)
	if err != nil {
		return rep
	}
	if u, ok := c.Path("username").Data().(string); ok {
		rep.username = u
	}
	if creds := c.Path("credentials"); creds != nil {
		for _, cred := range creds.Children() {
			typ, _ := cred.Path("type").Data().(string)
			if typ != "password" {
				continue
			}
			if v, ok := cred.Path("value").Data().(string); ok && v != "" {
				rep.password = []byte(v)
				break
			}
		}
	}
	return rep
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Factory builds one Listener per host session.
type Factory struct {
	store  *correlation.Store
	syncer CredentialSyncer
	log    zerolog.Logger
}

var _ host.ListenerFactory = (*Factory)(nil)

// NewFactory wires the shared correlation store and syncer into per-session
// listeners.
func NewFactory(store *correlation.Store, syncer CredentialSyncer, log zerolog.Logger) *Factory {
	return &Factory{store: store, syncer: syncer, log: log}
}

func (f *Factory) ID() string { return "scramsync-events" }

func (f *Factory) New(s host.Session) host.EventListener {
	return New(s, f.store, f.syncer, f.log.With().Str("component", "listener").Logger())
}
