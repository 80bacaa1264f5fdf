// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeracityAI/VeracityFOSS/services/assess/phases"
)

func TestObjectKey(t *testing.T) {
	report := &phases.Report{
		Framework:   "soc2",
		Target:      "acme-prod",
		GeneratedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	key := ObjectKey(report, "run-123")
	assert.Equal(t, "reports/acme-prod/soc2/20260301T123000Z-run-123.json", key)
}

func TestObjectKey_NormalizesToUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	report := &phases.Report{
		Framework:   "gdpr",
		Target:      "acme-eu",
		GeneratedAt: time.Date(2026, 3, 1, 7, 30, 0, 0, est),
	}
	key := ObjectKey(report, "run-9")
	assert.Contains(t, key, "20260301T123000Z")
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}
