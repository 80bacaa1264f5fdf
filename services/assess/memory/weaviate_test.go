// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

func TestParseHits(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]any{
				className: []any{
					map[string]any{
						"text":     "stale IAM keys on acme-prod",
						"category": "assessment",
						"tags":     []any{"soc2", "acme-prod"},
						"_additional": map[string]any{
							"id":        "b9c1f9a2-0000-0000-0000-000000000001",
							"certainty": 0.91,
						},
					},
					// Missing text: skipped, not an error.
					map[string]any{"category": "assessment"},
					// Wrong shape entirely: skipped.
					"garbage",
				},
			},
		},
	}

	hits := parseHits(resp)
	require.Len(t, hits, 1)
	assert.Equal(t, "stale IAM keys on acme-prod", hits[0].Text)
	assert.Equal(t, []string{"soc2", "acme-prod"}, hits[0].Tags)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.NotEmpty(t, hits[0].ID)
}

func TestParseHits_EmptyAndNil(t *testing.T) {
	assert.Nil(t, parseHits(nil))
	assert.Empty(t, parseHits(&models.GraphQLResponse{}))
}

func TestBuildWhere(t *testing.T) {
	assert.Nil(t, buildWhere(agent.RecallFilters{}), "no filters, no where clause")
	assert.NotNil(t, buildWhere(agent.RecallFilters{Category: "assessment"}))
	assert.NotNil(t, buildWhere(agent.RecallFilters{Category: "assessment", Tags: []string{"soc2"}}))
}

// The advisory contract: a dead backend yields empty values, never
// errors or panics.
func TestStore_SwallowsTransportFailures(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Config{Host: "127.0.0.1:1"})
	require.NoError(t, err, "construction must not dial")

	assert.Empty(t, s.Remember(ctx, "finding", "assessment", nil))
	assert.Empty(t, s.Recall(ctx, "anything", agent.RecallFilters{}, 3))
}
