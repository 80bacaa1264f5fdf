// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pool ref-counts process-wide resources that are expensive to
// build and must be torn down exactly once: the memory store client,
// the badger run store, the archive writer. Concurrent assessment runs
// share one instance of each; the last release closes it.
package pool

import (
	"fmt"
	"log/slog"
	"sync"
)

// InitFunc builds a resource. The returned closer may be nil for
// resources with no teardown.
type InitFunc func() (any, func() error, error)

type entry struct {
	refs   int
	value  any
	closer func() error
}

// Registry is the process-wide resource table.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Acquire returns the named resource, building it with init on first
// use. Every Acquire must be paired with a Release.
//
// Description:
//
//	The init function runs under the registry lock, so two concurrent
//	first acquires cannot double-build. A failed init leaves no entry
//	behind; the next acquire tries again.
func (r *Registry) Acquire(name string, init InitFunc) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		e.refs++
		return e.value, nil
	}

	value, closer, err := init()
	if err != nil {
		return nil, fmt.Errorf("pool: initializing %q: %w", name, err)
	}
	r.entries[name] = &entry{refs: 1, value: value, closer: closer}
	slog.Debug("Pool resource initialized", slog.String("name", name))
	return value, nil
}

// Release drops one reference. At zero the resource is closed and
// removed; a later Acquire rebuilds it.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("pool: release of unacquired resource %q", name)
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}

	delete(r.entries, name)
	if e.closer == nil {
		return nil
	}
	if err := e.closer(); err != nil {
		return fmt.Errorf("pool: closing %q: %w", name, err)
	}
	slog.Debug("Pool resource closed", slog.String("name", name))
	return nil
}

// Shutdown closes everything regardless of reference counts. Used on
// process exit; errors are collected, not short-circuited.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, e := range r.entries {
		if e.closer != nil {
			if err := e.closer(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("pool: closing %q: %w", name, err)
			}
		}
		delete(r.entries, name)
	}
	return firstErr
}

// Acquired reports whether a named resource is currently live. For
// tests and diagnostics.
func (r *Registry) Acquired(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}
