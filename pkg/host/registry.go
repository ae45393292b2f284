// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"cmp"
	"slices"
	"sync"
)

// Registry is the service-loader surface a host consults to discover
// provider factories. Registration happens once at composition time; lookup
// is concurrent-safe and picks the highest-order factory per identifier.
type Registry struct {
	mu        sync.RWMutex
	hashers   map[string][]HasherFactory
	listeners []ListenerFactory
}

func NewRegistry() *Registry {
	return &Registry{hashers: map[string][]HasherFactory{}}
}

// RegisterHasher adds a password-hash provider factory under its ID. Several
// factories may share an ID; Hasher resolves the conflict by order.
func (r *Registry) RegisterHasher(f HasherFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := f.ID()
	r.hashers[id] = append(r.hashers[id], f)
	slices.SortStableFunc(r.hashers[id], func(a, b HasherFactory) int {
		return cmp.Compare(b.Order(), a.Order())
	})
}

// Hasher returns the highest-order factory registered under id.
func (r *Registry) Hasher(id string) (HasherFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fs := r.hashers[id]
	if len(fs) == 0 {
		return nil, false
	}
	return fs[0], true
}

// RegisterListener adds an event listener factory.
func (r *Registry) RegisterListener(f ListenerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, f)
}

// Listeners returns the registered listener factories in registration order.
func (r *Registry) Listeners() []ListenerFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ListenerFactory, len(r.listeners))
	copy(out, r.listeners)
	return out
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the process-wide registry for hosts that do not
// assemble their own.
func DefaultRegistry() *Registry { return defaultRegistry }
