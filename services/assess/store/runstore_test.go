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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeracityAI/VeracityFOSS/services/assess/phases"
)

// Both implementations must behave identically; everything below runs
// against each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return map[string]Store{
		"badger":   b,
		"inmemory": NewInMemory(),
	}
}

func record(framework, target string, at time.Time, report *phases.Report) *Record {
	rec := NewRecord(framework, "", target)
	rec.CreatedAt = at
	rec.Status = "completed"
	rec.Report = report
	return rec
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := record("soc2", "acme-prod", time.Now().UTC(), &phases.Report{
				Framework: "soc2",
				Target:    "acme-prod",
				Summary:   "fine",
			})
			require.NoError(t, s.Save(ctx, rec))

			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, "fine", got.Report.Summary)
		})
	}
}

func TestStore_GetUnknownID(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "no-such-run")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListNewestFirstAndFiltered(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			older := record("soc2", "acme-prod", base, nil)
			newer := record("soc2", "acme-prod", base.Add(time.Hour), nil)
			other := record("soc2", "other-target", base.Add(2*time.Hour), nil)
			for _, r := range []*Record{older, newer, other} {
				require.NoError(t, s.Save(ctx, r))
			}

			got, err := s.List(ctx, "acme-prod", 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, newer.ID, got[0].ID, "newest first")
			assert.Equal(t, older.ID, got[1].ID)

			all, err := s.List(ctx, "", 10)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_LatestReportSkipsReportlessRuns(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			withReport := record("soc2", "acme-prod", base, &phases.Report{Summary: "older report"})
			failed := record("soc2", "acme-prod", base.Add(time.Hour), nil)
			failed.Status = "failed"
			require.NoError(t, s.Save(ctx, withReport))
			require.NoError(t, s.Save(ctx, failed))

			rep, err := s.LatestReport(ctx, "soc2", "acme-prod")
			require.NoError(t, err)
			assert.Equal(t, "older report", rep.Summary)

			_, err = s.LatestReport(ctx, "iso27001", "acme-prod")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
