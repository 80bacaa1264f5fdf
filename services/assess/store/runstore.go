// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists assessment runs. The badger store is the
// production backend; InMemory backs tests and the ephemeral serve
// mode. Records are immutable once terminal, which is what makes the
// previous-report lookup for the compare phase trustworthy.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/VeracityAI/VeracityFOSS/services/assess/phases"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Record is one assessment run at rest.
type Record struct {
	ID               string             `json:"id"`
	Framework        string             `json:"framework"`
	FrameworkVersion string             `json:"framework_version,omitempty"`
	Target           string             `json:"target"`
	Status           string             `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	Report           *phases.Report     `json:"report,omitempty"`
	Comparison       *phases.Comparison `json:"comparison,omitempty"`
	Errors           []string           `json:"errors,omitempty"`
}

// NewRecord mints a record for a run about to start.
func NewRecord(framework, version, target string) *Record {
	return &Record{
		ID:               uuid.NewString(),
		Framework:        framework,
		FrameworkVersion: version,
		Target:           target,
		Status:           "running",
		CreatedAt:        time.Now().UTC(),
	}
}

// Store is the run persistence contract.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)

	// List returns runs newest-first. Empty target matches all.
	List(ctx context.Context, target string, limit int) ([]*Record, error)

	// LatestReport returns the newest completed report for the
	// framework/target pair, or ErrNotFound.
	LatestReport(ctx context.Context, framework, target string) (*phases.Report, error)

	Close() error
}

const (
	runPrefix  = "run:"
	timePrefix = "ts:"
)

// Badger implements Store on an embedded badger database.
//
// Thread Safety: Badger is safe for concurrent use.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the database at path.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger at %s: %w", path, err)
	}
	return &Badger{db: db}, nil
}

func runKey(id string) []byte { return []byte(runPrefix + id) }

// timeKey orders runs by creation time; the nanosecond timestamp is
// fixed-width so lexicographic order is chronological order.
func timeKey(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", timePrefix, at.UnixNano(), id))
}

func (b *Badger) Save(_ context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encoding run %s: %w", rec.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(rec.ID), payload); err != nil {
			return err
		}
		return txn.Set(timeKey(rec.CreatedAt, rec.ID), []byte(rec.ID))
	})
}

func (b *Badger) Get(_ context.Context, id string) (*Record, error) {
	var rec *Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &Record{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (b *Badger) List(ctx context.Context, target string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(timePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the end of the prefix range, then walk backwards.
		seek := append([]byte(timePrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(timePrefix)); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			rec, err := b.Get(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if target != "" && rec.Target != target {
				continue
			}
			out = append(out, rec)
			if len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) LatestReport(ctx context.Context, framework, target string) (*phases.Report, error) {
	recs, err := b.List(ctx, target, 0)
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

func (b *Badger) Close() error { return b.db.Close() }
