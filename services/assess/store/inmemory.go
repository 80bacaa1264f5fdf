// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/VeracityAI/VeracityFOSS/services/assess/phases"
)

// InMemory implements Store on a map. Records are copied on the way in
// and out so callers cannot mutate stored state.
//
// Thread Safety: InMemory is safe for concurrent use.
type InMemory struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{recs: make(map[string]Record)}
}

func (m *InMemory) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = *rec
	return nil
}

func (m *InMemory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *InMemory) List(_ context.Context, target string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.recs))
	for _, rec := range m.recs {
		if target != "" && rec.Target != target {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) LatestReport(ctx context.Context, framework, target string) (*phases.Report, error) {
	recs, err := m.List(ctx, target, 0)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Framework == framework && rec.Report != nil {
			return rec.Report, nil
		}
	}
	return nil, ErrNotFound
}

func (m *InMemory) Close() error { return nil }
