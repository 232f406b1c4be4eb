// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kvstore provides the namespaced, expiring key-value store backing
// the relay's work-context tools.
//
// Two implementations share the Store interface: Memory for the default
// per-process store, and SQLite for callers that need the context to
// survive restarts. Expired entries read as absent and are lazily purged.
package kvstore

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the contract the work-context tools program against.
//
// Namespaces isolate sessions: a store shared across concurrent sessions
// must be keyed by namespace to avoid cross-session interference, and
// callers here always pass a session-scoped namespace.
type Store interface {
	// Put stores value under (namespace, key). A ttl of zero means the
	// entry never expires.
	Put(namespace, key, value string, ttl time.Duration) error

	// Get returns the value and true when present and unexpired.
	Get(namespace, key string) (string, bool, error)

	// List returns unexpired entries in the namespace whose key starts
	// with prefix, sorted by key.
	List(namespace, prefix string) ([]Entry, error)

	// Delete removes an entry; deleting an absent key is not an error.
	Delete(namespace, key string) error

	// Close releases underlying resources.
	Close() error
}

// Entry is one stored key-value pair.
type Entry struct {
	Key       string
	Value     string
	ExpiresAt time.Time // zero when the entry does not expire
}

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is the default in-process store. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]memoryEntry

	// now is swappable for expiry tests
	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]memoryEntry),
		now:  time.Now,
	}
}

// Put implements Store.
func (m *Memory) Put(namespace, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]memoryEntry)
		m.data[namespace] = ns
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	ns[key] = e
	return nil
}

// Get implements Store. Expired entries are removed on read.
func (m *Memory) Get(namespace, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		return "", false, nil
	}
	e, ok := ns[key]
	if !ok {
		return "", false, nil
	}
	if m.expired(e) {
		delete(ns, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// List implements Store.
func (m *Memory) List(namespace, prefix string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.data[namespace]
	var out []Entry
	for k, e := range ns {
		if m.expired(e) {
			delete(ns, k)
			continue
		}
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, Entry{Key: k, Value: e.value, ExpiresAt: e.expiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

// Close implements Store. The in-memory store holds no resources.
func (m *Memory) Close() error { return nil }

func (m *Memory) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}
